package matcher

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"speech-scoring-service/internal/command"
)

// Phonemizer converts words to a representation of how they sound in a
// language. Words that sound alike map to equal strings.
type Phonemizer interface {
	Phonemes(ctx context.Context, words []string, lang string) ([]string, error)
}

// DefaultCacheSize is the number of transcriptions an EspeakPhonemizer keeps.
const DefaultCacheSize = 10000

// EspeakPhonemizer uses espeak-ng to produce IPA transcriptions. The most
// recently used results are cached per language and word.
type EspeakPhonemizer struct {
	runner command.Runner
	path   string
	cache  *lru.Cache[string, string]
}

// NewEspeakPhonemizer creates a phonemizer running the espeak-ng binary at
// path, caching up to cacheSize transcriptions.
func NewEspeakPhonemizer(runner command.Runner, path string, cacheSize int) (*EspeakPhonemizer, error) {
	if path == "" {
		path = "espeak-ng"
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("phoneme cache: %w", err)
	}
	return &EspeakPhonemizer{runner: runner, path: path, cache: cache}, nil
}

// Phonemes implements Phonemizer.
func (p *EspeakPhonemizer) Phonemes(ctx context.Context, words []string, lang string) ([]string, error) {
	voice := espeakVoice(lang)
	out := make([]string, len(words))
	for i, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		key := voice + "\x00" + w

		ipa, ok := p.cache.Get(key)
		if !ok {
			args := []string{"-q", "--ipa", "-v", voice, w}
			res, err := p.runner.Run(ctx, nil, p.path, args...)
			if err != nil {
				return nil, fmt.Errorf("espeak-ng %q (exit=%d): %w", w, res.ExitCode, err)
			}
			ipa = cleanIPA(res.Stdout)
			p.cache.Add(key, ipa)
		}
		out[i] = ipa
	}
	return out, nil
}

// espeakVoice maps a BCP-47 language code to an espeak-ng voice. Only English
// and Portuguese keep their region.
func espeakVoice(lang string) string {
	lang = strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
	base, _, _ := strings.Cut(lang, "-")
	switch base {
	case "":
		return "en-us"
	case "en", "pt":
		return lang
	default:
		return base
	}
}

// cleanIPA drops whitespace, stress marks and word separators.
func cleanIPA(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == 'ˈ', r == 'ˌ', r == '_':
			return -1
		}
		return r
	}, s)
}

// FoldPhonemizer approximates phonemes by removing diacritics and case.
// It needs no external tools.
type FoldPhonemizer struct{}

// Phonemes implements Phonemizer.
func (FoldPhonemizer) Phonemes(ctx context.Context, words []string, lang string) ([]string, error) {
	out := make([]string, len(words))
	for i, w := range words {
		folded, err := Fold(w)
		if err != nil {
			return nil, err
		}
		out[i] = folded
	}
	return out, nil
}

// Fold strips diacritics and applies Unicode case folding: "Cása" becomes "casa".
func Fold(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("fold %q: %w", s, err)
	}
	return out, nil
}
