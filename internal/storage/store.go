// Package storage provides the audio store used by the scoring pipeline.
package storage

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned when a path or URI has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// AudioStore is a blob store for answer recordings.
type AudioStore interface {
	// Download copies the object at uri into the work directory under
	// localName and returns the local path.
	Download(ctx context.Context, uri, localName string) (string, error)
	// UploadFile stores the local file at path and returns its URI.
	UploadFile(ctx context.Context, path, localPath string) (string, error)
	// UploadBytes stores data at path and returns its URI.
	UploadBytes(ctx context.Context, path string, data []byte) (string, error)
	// SignedURL returns a time-limited URL for method on path.
	SignedURL(ctx context.Context, path, mimetype, method string) (string, error)
	// ContentType returns the stored MIME type of path, or "" when unknown.
	ContentType(ctx context.Context, path string) (string, error)
	// ObjectPath maps a URI returned by this store back to its path.
	ObjectPath(uri string) (string, error)
}

var audioTypes = map[string]string{
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".3gp":  "audio/3gpp",
	".amr":  "audio/amr",
}

// TypeByExtension returns the MIME type for a file name. Audio extensions
// resolve from a fixed table so results do not depend on the host mime.types.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return ""
}
