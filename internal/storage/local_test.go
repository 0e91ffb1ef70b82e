package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocal(filepath.Join(dir, "root"), filepath.Join(dir, "work"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return s
}

func TestLocal_UploadAndDownload(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	uri, err := s.UploadBytes(ctx, "results/r-1/answer.flac", []byte("fLaC-data"))
	if err != nil {
		t.Fatalf("UploadBytes: %v", err)
	}
	if uri != "local://results/r-1/answer.flac" {
		t.Errorf("unexpected uri %q", uri)
	}

	local, err := s.Download(ctx, uri, "copy.flac")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fLaC-data" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestLocal_UploadFile(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	src := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(src, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	uri, err := s.UploadFile(ctx, "a/b.wav", src)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	path, err := s.ObjectPath(uri)
	if err != nil || path != "a/b.wav" {
		t.Errorf("ObjectPath = %q, %v", path, err)
	}
	ct, err := s.ContentType(ctx, path)
	if err != nil || ct != "audio/wav" {
		t.Errorf("ContentType = %q, %v", ct, err)
	}
}

func TestLocal_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	if _, err := s.Download(ctx, "local://missing.flac", "x.flac"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if _, err := s.ContentType(ctx, "missing.flac"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocal_ObjectPath(t *testing.T) {
	s := newTestLocal(t)
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{"local://a.flac", false},
		{"gs://bucket/a.flac", true},
		{"local://", true},
		{"local://../etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			_, err := s.ObjectPath(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Errorf("ObjectPath(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
		})
	}
}

func TestLocal_SignedURL(t *testing.T) {
	s := newTestLocal(t)
	u, err := s.SignedURL(context.Background(), "a.flac", "audio/flac", "GET")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/a.flac") {
		t.Errorf("unexpected url %q", u)
	}
}

func TestTypeByExtension(t *testing.T) {
	tests := map[string]string{
		"a.flac": "audio/flac",
		"a.WEBM": "audio/webm",
		"a.m4a":  "audio/mp4",
		"a.3gp":  "audio/3gpp",
		"noext":  "",
		"x.mp3":  "audio/mpeg",
	}
	for name, want := range tests {
		if got := TypeByExtension(name); got != want {
			t.Errorf("TypeByExtension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestGCS_ObjectPathAndURI(t *testing.T) {
	s := &GCS{bucket: "answers"}
	path, err := s.ObjectPath("gs://answers/results/r-1.flac")
	if err != nil || path != "results/r-1.flac" {
		t.Errorf("ObjectPath = %q, %v", path, err)
	}
	if _, err := s.ObjectPath("gs://other/results/r-1.flac"); err == nil {
		t.Error("expected error for foreign bucket")
	}
	if got := s.uri("x/y.flac"); got != "gs://answers/x/y.flac" {
		t.Errorf("uri = %q", got)
	}
}
