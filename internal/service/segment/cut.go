package segment

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/storage"
)

// Trimmer writes the [start, end] seconds of in to out.
type Trimmer interface {
	Trim(ctx context.Context, in, out string, start, end float64) error
}

// StoreCutter cuts sub-ranges by downloading the parent clip, trimming it
// locally and uploading the result next to the parent.
type StoreCutter struct {
	store   storage.AudioStore
	trimmer Trimmer
	names   *Generator
}

// NewStoreCutter creates a cutter over store.
func NewStoreCutter(store storage.AudioStore, trimmer Trimmer) *StoreCutter {
	return &StoreCutter{store: store, trimmer: trimmer, names: NewGenerator()}
}

// Cut implements Cutter. Local files are removed once uploaded.
func (c *StoreCutter) Cut(ctx context.Context, audio models.AudioSegment, r Range) (models.AudioSegment, error) {
	objectPath, err := c.store.ObjectPath(audio.URI)
	if err != nil {
		return models.AudioSegment{}, err
	}
	ext := path.Ext(objectPath)

	local, err := c.store.Download(ctx, audio.URI, uuid.NewString()+ext)
	if err != nil {
		return models.AudioSegment{}, fmt.Errorf("download parent: %w", err)
	}
	defer os.Remove(local)

	trimmed := filepath.Join(filepath.Dir(local), uuid.NewString()+"-trim.flac")
	if err := c.trimmer.Trim(ctx, local, trimmed, r.Start, r.End); err != nil {
		return models.AudioSegment{}, fmt.Errorf("trim %.3f-%.3f: %w", r.Start, r.End, err)
	}
	defer os.Remove(trimmed)

	// Sub-ranges are always FLAC, whatever the parent was named.
	name := c.names.Next(strings.TrimSuffix(objectPath, ext) + ".flac")
	uri, err := c.store.UploadFile(ctx, name, trimmed)
	if err != nil {
		return models.AudioSegment{}, fmt.Errorf("upload sub-range: %w", err)
	}
	return models.AudioSegment{
		URI:        uri,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		Duration:   r.Length(),
	}, nil
}
