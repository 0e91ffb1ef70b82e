package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const localScheme = "local://"

// Local stores audio under a directory on disk. It backs development runs
// and tests; URIs take the form local://<path>.
type Local struct {
	root    string
	workDir string
}

// NewLocal creates the root and work directories if needed.
func NewLocal(root, workDir string) (*Local, error) {
	for _, dir := range []string{root, workDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
	}
	return &Local{root: root, workDir: workDir}, nil
}

// ObjectPath strips local:// from uri. Paths escaping the root are rejected.
func (s *Local) ObjectPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, localScheme) || len(uri) == len(localScheme) {
		return "", fmt.Errorf("local store: unsupported uri %q", uri)
	}
	path := strings.TrimPrefix(uri, localScheme)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("local store: invalid path %q", path)
	}
	return path, nil
}

func (s *Local) file(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// Download copies the object to localName in the work directory.
func (s *Local) Download(ctx context.Context, uri, localName string) (string, error) {
	path, err := s.ObjectPath(uri)
	if err != nil {
		return "", err
	}
	src, err := os.Open(s.file(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
		}
		return "", err
	}
	defer src.Close()

	localPath := filepath.Join(s.workDir, localName)
	if err := writeFile(localPath, src); err != nil {
		return "", err
	}
	return localPath, nil
}

// UploadFile copies localPath to path under the root.
func (s *Local) UploadFile(ctx context.Context, path, localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()
	if err := writeFile(s.file(path), src); err != nil {
		return "", err
	}
	return localScheme + path, nil
}

// UploadBytes writes data to path under the root.
func (s *Local) UploadBytes(ctx context.Context, path string, data []byte) (string, error) {
	dst := s.file(path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return localScheme + path, nil
}

// SignedURL returns a file:// URL; local objects need no signature.
func (s *Local) SignedURL(ctx context.Context, path, mimetype, method string) (string, error) {
	abs, err := filepath.Abs(s.file(path))
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// ContentType is derived from the extension of path.
func (s *Local) ContentType(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(s.file(path)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return "", err
	}
	return TypeByExtension(path), nil
}

func writeFile(dst string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return f.Close()
}
