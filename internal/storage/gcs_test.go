package storage

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type failingReader struct {
	data string
	err  error
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestCopyObject(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name      string
		src       io.Reader
		wantErr   error
		wantAbort bool
	}{
		{"complete copy", strings.NewReader("fLaC"), nil, false},
		{"read fails mid-copy", &failingReader{data: "fL", err: boom}, boom, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst bytes.Buffer
			aborted := false
			err := copyObject(&dst, tt.src, func() { aborted = true })
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if aborted != tt.wantAbort {
				t.Errorf("aborted = %v, want %v", aborted, tt.wantAbort)
			}
		})
	}
}

func TestGCS_ObjectPath(t *testing.T) {
	s := &GCS{bucket: "answers"}
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"gs://answers/a-1.flac", "a-1.flac", false},
		{"gs://answers/", "", true},
		{"gs://other/a-1.flac", "", true},
		{"local://a-1.flac", "", true},
	}
	for _, tt := range tests {
		got, err := s.ObjectPath(tt.uri)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ObjectPath(%q) = %q, %v", tt.uri, got, err)
		}
	}
}
