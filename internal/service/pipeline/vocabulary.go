package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/observability/metrics"
	"speech-scoring-service/internal/service/stt"
)

// ErrEmptyVocabulary is returned when no usable expected word is given.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// PhraseSets is the phrase set lifecycle of a recognizer.
type PhraseSets interface {
	CreatePhraseSet(ctx context.Context, phrases []stt.WeightedPhrase) (string, error)
	DeletePhraseSet(ctx context.Context, id string) error
}

// Vocabulary manages the recognizer phrase sets biasing recognition toward
// the expected words of a question.
type Vocabulary struct {
	phraseSets PhraseSets
	boost      float32
	log        zerolog.Logger
}

// NewVocabulary creates a Vocabulary weighting every phrase with boost.
func NewVocabulary(phraseSets PhraseSets, boost float32) *Vocabulary {
	return &Vocabulary{
		phraseSets: phraseSets,
		boost:      boost,
		log:        logging.WithComponent("vocabulary"),
	}
}

// Prepare creates a phrase set from the expected words or phrases and
// returns its id. Duplicates are dropped ignoring case.
func (v *Vocabulary) Prepare(ctx context.Context, words []string) (string, error) {
	phrases := v.phrases(words)
	if len(phrases) == 0 {
		return "", ErrEmptyVocabulary
	}
	id, err := v.phraseSets.CreatePhraseSet(ctx, phrases)
	if err != nil {
		return "", fmt.Errorf("create phrase set: %w", err)
	}
	metrics.DefaultMetrics.RecordPhraseSet(true)
	v.log.Debug().Str("phraseSetId", id).Int("phrases", len(phrases)).Msg("Phrase set created")
	return id, nil
}

// Release deletes a phrase set created by Prepare.
func (v *Vocabulary) Release(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := v.phraseSets.DeletePhraseSet(ctx, id); err != nil {
		return fmt.Errorf("delete phrase set %s: %w", id, err)
	}
	metrics.DefaultMetrics.RecordPhraseSet(false)
	v.log.Debug().Str("phraseSetId", id).Msg("Phrase set deleted")
	return nil
}

// Replace prepares a phrase set for words and then releases previousID.
// A failed release is logged; the new phrase set is still returned.
func (v *Vocabulary) Replace(ctx context.Context, previousID string, words []string) (string, error) {
	id, err := v.Prepare(ctx, words)
	if err != nil {
		return "", err
	}
	if err := v.Release(ctx, previousID); err != nil {
		v.log.Warn().Err(err).Str("phraseSetId", previousID).Msg("Stale phrase set not deleted")
	}
	return id, nil
}

func (v *Vocabulary) phrases(words []string) []stt.WeightedPhrase {
	seen := make(map[string]bool, len(words))
	out := make([]stt.WeightedPhrase, 0, len(words))
	for _, w := range words {
		w = strings.Join(strings.Fields(w), " ")
		key := strings.ToLower(w)
		if w == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, stt.WeightedPhrase{Value: w, Boost: v.boost})
	}
	return out
}
