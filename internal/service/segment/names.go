package segment

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"
)

// Generator names the uploaded sub-range clips. The index is shared by every
// name it hands out, so sibling gaps of one clip never collide.
type Generator struct {
	counter uint64
}

// NewGenerator creates a generator starting at index 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns objectPath with "-seg-<i>" inserted before its extension.
func (g *Generator) Next(objectPath string) string {
	n := atomic.AddUint64(&g.counter, 1)
	ext := path.Ext(objectPath)
	return fmt.Sprintf("%s-seg-%d%s", strings.TrimSuffix(objectPath, ext), n, ext)
}
