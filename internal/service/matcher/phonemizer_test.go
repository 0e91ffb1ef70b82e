package matcher

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"speech-scoring-service/internal/command"
)

type espeakRunner struct {
	out   map[string]string
	err   error
	calls [][]string
}

func (r *espeakRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) (command.Result, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return command.Result{ExitCode: 1, Stderr: "unknown voice"}, r.err
	}
	return command.Result{Stdout: r.out[args[len(args)-1]]}, nil
}

func TestEspeakPhonemizer(t *testing.T) {
	runner := &espeakRunner{out: map[string]string{
		"there": " ðˈeə\n",
		"their": " ðˈeə\n",
		"cat":   " kˈat\n",
	}}
	p, err := NewEspeakPhonemizer(runner, "", DefaultCacheSize)
	if err != nil {
		t.Fatal(err)
	}

	got, err := p.Phonemes(context.Background(), []string{"There", "their", "cat", " "}, "en-GB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != "ðeə" || got[0] != got[1] || got[2] != "kat" || got[3] != "" {
		t.Errorf("unexpected phonemes %q", got)
	}

	first := strings.Join(runner.calls[0], " ")
	if first != "espeak-ng -q --ipa -v en-gb there" {
		t.Errorf("unexpected invocation %q", first)
	}

	if _, err := p.Phonemes(context.Background(), []string{"cat", "THERE"}, "en-GB"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Errorf("expected cached words not to rerun espeak-ng, got %d calls", len(runner.calls))
	}
}

func TestEspeakPhonemizer_Error(t *testing.T) {
	boom := errors.New("exit status 1")
	p, err := NewEspeakPhonemizer(&espeakRunner{err: boom}, "/usr/bin/espeak-ng", DefaultCacheSize)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Phonemes(context.Background(), []string{"gato"}, "es-ES")
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "exit=1") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEspeakPhonemizer_CacheIsBounded(t *testing.T) {
	runner := &espeakRunner{out: map[string]string{"cat": "kˈat", "dog": "dˈɒɡ"}}
	p, err := NewEspeakPhonemizer(runner, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, w := range []string{"cat", "dog", "cat"} {
		if _, err := p.Phonemes(ctx, []string{w}, "en-GB"); err != nil {
			t.Fatal(err)
		}
	}
	if len(runner.calls) != 3 {
		t.Errorf("expected evicted word to rerun espeak-ng, got %d calls", len(runner.calls))
	}
	if p.cache.Len() != 1 {
		t.Errorf("expected cache capped at 1, got %d", p.cache.Len())
	}

	if _, err := NewEspeakPhonemizer(runner, "", 0); err == nil {
		t.Error("expected error for zero cache size")
	}
}

func TestEspeakVoice(t *testing.T) {
	tests := map[string]string{
		"":      "en-us",
		"en-US": "en-us",
		"en_GB": "en-gb",
		"pt-BR": "pt-br",
		"es-ES": "es",
		"fr":    "fr",
	}
	for in, want := range tests {
		if got := espeakVoice(in); got != want {
			t.Errorf("espeakVoice(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Cása":    "casa",
		"  Niño ": "nino",
		"façade":  "facade",
		"STRASSE": "strasse",
	}
	for in, want := range tests {
		got, err := Fold(in)
		if err != nil {
			t.Fatalf("Fold(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldPhonemizer(t *testing.T) {
	got, err := FoldPhonemizer{}.Phonemes(context.Background(), []string{"Árbol", "arbol"}, "es")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != got[1] {
		t.Errorf("expected equal folds, got %q", got)
	}
}
