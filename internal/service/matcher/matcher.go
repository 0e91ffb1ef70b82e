// Package matcher reconciles a recognized transcript against the expected
// words of a question and counts the words read correctly.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"speech-scoring-service/internal/models"
)

var punctuation = strings.NewReplacer(".", "", ",", "", "!", "", "?", "")

// Tokenize strips . , ! ? and splits on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(punctuation.Replace(text))
}

// Matcher scores transcripts.
type Matcher struct {
	phonemizer Phonemizer
}

// New creates a Matcher comparing phonetic question types with p.
func New(p Phonemizer) *Matcher {
	return &Matcher{phonemizer: p}
}

// Score aligns the tokens of text against expected, greedily and one to one.
//
// Each expected token, in order, takes the first unconsumed transcript token
// equal to it, ignoring case. The transcript token is consumed and replaced
// with the expected spelling. WORDS and COMPLEX_WORDS compare phonemes in
// lang; PHRASES compares the literal tokens of each expected phrase and then
// applies SpellingCleanup to the unmatched tokens.
func (m *Matcher) Score(ctx context.Context, expected []string, text string, qtype models.QuestionType, lang string) (models.MatchResult, error) {
	transcripts := Tokenize(text)
	targets := expectedTokens(expected, qtype)

	normTargets, normTranscripts, err := m.normalize(ctx, targets, transcripts, qtype, lang)
	if err != nil {
		return models.MatchResult{}, err
	}

	hits := make([]bool, len(transcripts))
	right := 0
	for i, want := range normTargets {
		if want == "" {
			continue
		}
		for k, got := range normTranscripts {
			if got != "" && strings.EqualFold(want, got) {
				transcripts[k] = targets[i]
				normTranscripts[k] = ""
				hits[k] = true
				right++
				break
			}
		}
	}

	if !qtype.Phonetic() {
		transcripts = SpellingCleanup(transcripts, hits)
	}
	return models.MatchResult{RightCount: right, Transcript: transcripts}, nil
}

// expectedTokens splits phrases into words. Word questions keep each entry
// as one token.
func expectedTokens(expected []string, qtype models.QuestionType) []string {
	var out []string
	for _, e := range expected {
		if qtype.Phonetic() {
			if w := strings.TrimSpace(punctuation.Replace(e)); w != "" {
				out = append(out, w)
			}
			continue
		}
		out = append(out, Tokenize(e)...)
	}
	return out
}

func (m *Matcher) normalize(ctx context.Context, targets, transcripts []string, qtype models.QuestionType, lang string) ([]string, []string, error) {
	if !qtype.Phonetic() {
		return append([]string(nil), targets...), append([]string(nil), transcripts...), nil
	}
	normTargets, err := m.phonemizer.Phonemes(ctx, targets, lang)
	if err != nil {
		return nil, nil, fmt.Errorf("phonemize expected words: %w", err)
	}
	normTranscripts, err := m.phonemizer.Phonemes(ctx, transcripts, lang)
	if err != nil {
		return nil, nil, fmt.Errorf("phonemize transcript: %w", err)
	}
	return normTargets, normTranscripts, nil
}

// SpellingCleanup merges runs of two or more consecutive single-letter tokens
// into one word: recognizers transcribe spelled-out words as "c a t". Tokens
// marked in keep are never merged. keep may be nil.
func SpellingCleanup(tokens []string, keep []bool) []string {
	kept := func(i int) bool { return i < len(keep) && keep[i] }

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		j := i
		for j < len(tokens) && !kept(j) && isLetter(tokens[j]) {
			j++
		}
		if j-i >= 2 {
			out = append(out, strings.Join(tokens[i:j], ""))
			i = j
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func isLetter(tok string) bool {
	r, size := utf8.DecodeRuneInString(tok)
	return size == len(tok) && unicode.IsLetter(r)
}
