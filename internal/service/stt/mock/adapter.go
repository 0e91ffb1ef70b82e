// Package mock provides a recognizer for running the pipeline without cloud
// credentials. It "recognizes" the expected words, spread evenly over the clip.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/service/stt"
)

// wordLength is the duration given to each simulated word.
const wordLength = 600 * time.Millisecond

// Adapter implements stt.Recognizer with deterministic responses.
type Adapter struct {
	mu         sync.Mutex
	phraseSets map[string][]string
	nextID     int
	calls      int
}

// New creates a new mock recognizer.
func New() *Adapter {
	return &Adapter{phraseSets: make(map[string][]string)}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "mock" }

// Recognize returns the request hints, or else the words of the referenced
// phrase set, one per equal slot of the clip. Unknown phrase sets and empty
// vocabularies yield no result.
func (a *Adapter) Recognize(ctx context.Context, req stt.Request) ([]models.WordSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.calls++
	vocab := req.Hints
	if len(vocab) == 0 {
		vocab = a.phraseSets[req.PhraseSetID]
	}
	a.mu.Unlock()

	var tokens []string
	for _, phrase := range vocab {
		tokens = append(tokens, strings.Fields(phrase)...)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	slot := time.Second
	if req.Duration > 0 {
		slot = time.Duration(req.Duration / float64(len(tokens)) * float64(time.Second))
	}
	length := min(wordLength, slot)

	words := make([]models.WordSpan, 0, len(tokens))
	for i, tok := range tokens {
		start := time.Duration(i) * slot
		words = append(words, models.WordSpan{Word: tok, Start: start, End: start + length})
	}
	return words, nil
}

// CreatePhraseSet stores the phrases in memory.
func (a *Adapter) CreatePhraseSet(ctx context.Context, phrases []stt.WeightedPhrase) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := fmt.Sprintf("mock-phrase-set-%d", a.nextID)
	values := make([]string, 0, len(phrases))
	for _, p := range phrases {
		values = append(values, p.Value)
	}
	a.phraseSets[id] = values
	return id, nil
}

// DeletePhraseSet forgets a phrase set. Unknown ids are ignored.
func (a *Adapter) DeletePhraseSet(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.phraseSets, id)
	return nil
}

// Calls returns how many recognitions were served.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
