package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/storage"
)

// testTrimmer writes a marker naming the requested range instead of running ffmpeg.
type testTrimmer struct {
	err    error
	inputs []string
	output string
}

func (tr *testTrimmer) Trim(ctx context.Context, in, out string, start, end float64) error {
	tr.inputs = append(tr.inputs, in)
	tr.output = out
	if tr.err != nil {
		return tr.err
	}
	return os.WriteFile(out, []byte(fmt.Sprintf("%g-%g", start, end)), 0o644)
}

func newTestStore(t *testing.T) (*storage.Local, string) {
	t.Helper()
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	store, err := storage.NewLocal(filepath.Join(dir, "root"), work)
	if err != nil {
		t.Fatal(err)
	}
	return store, work
}

func TestStoreCutter_CutsAndUploadsSiblings(t *testing.T) {
	ctx := context.Background()
	store, work := newTestStore(t)
	parentURI, err := store.UploadBytes(ctx, "results/r-1/answer.flac", []byte("full clip"))
	if err != nil {
		t.Fatal(err)
	}
	parent := models.AudioSegment{URI: parentURI, SampleRate: 16000, Channels: 1, Duration: 30}

	trimmer := &testTrimmer{}
	cutter := NewStoreCutter(store, trimmer)

	first, err := cutter.Cut(ctx, parent, Range{Start: 1, End: 7})
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}
	second, err := cutter.Cut(ctx, parent, Range{Start: 8, End: 30})
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}

	if first.URI != "local://results/r-1/answer-seg-1.flac" || second.URI != "local://results/r-1/answer-seg-2.flac" {
		t.Errorf("unexpected sibling uris %q, %q", first.URI, second.URI)
	}
	if first.Duration != 6 || second.Duration != 22 || first.SampleRate != 16000 || first.Channels != 1 {
		t.Errorf("unexpected segments %+v %+v", first, second)
	}

	local, err := store.Download(ctx, second.URI, "check.flac")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(local)
	if string(data) != "8-30" {
		t.Errorf("unexpected uploaded content %q", data)
	}
	os.Remove(local)

	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Errorf("expected temporary files removed, found %d", len(entries))
	}
}

func TestStoreCutter_ParentWithoutExtension(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	parentURI, err := store.UploadBytes(ctx, "answers/a-1", []byte("full clip"))
	if err != nil {
		t.Fatal(err)
	}

	trimmer := &testTrimmer{}
	cutter := NewStoreCutter(store, trimmer)
	got, err := cutter.Cut(ctx, models.AudioSegment{URI: parentURI, Duration: 20}, Range{Start: 6, End: 20})
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}
	if filepath.Ext(trimmer.output) != ".flac" {
		t.Errorf("expected trimmed file to be named .flac, got %q", trimmer.output)
	}
	if got.URI != "local://answers/a-1-seg-1.flac" {
		t.Errorf("unexpected sub-range uri %q", got.URI)
	}
}

func TestStoreCutter_TrimFailure(t *testing.T) {
	ctx := context.Background()
	store, work := newTestStore(t)
	parentURI, _ := store.UploadBytes(ctx, "a.flac", []byte("clip"))

	boom := errors.New("ffmpeg exited 1")
	cutter := NewStoreCutter(store, &testTrimmer{err: boom})

	if _, err := cutter.Cut(ctx, models.AudioSegment{URI: parentURI, Duration: 10}, Range{Start: 0, End: 6}); !errors.Is(err, boom) {
		t.Errorf("expected trim error, got %v", err)
	}
	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Errorf("expected downloaded parent removed, found %d files", len(entries))
	}
}

func TestStoreCutter_MissingParent(t *testing.T) {
	store, _ := newTestStore(t)
	cutter := NewStoreCutter(store, &testTrimmer{})
	_, err := cutter.Cut(context.Background(), models.AudioSegment{URI: "local://missing.flac"}, Range{End: 6})
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}
