// Package stt defines the interface for speech recognizers.
package stt

import (
	"context"

	"speech-scoring-service/internal/models"
)

// Request describes one recognition call.
type Request struct {
	// PhraseSetID references a phrase set created with CreatePhraseSet.
	PhraseSetID string
	// AudioURI is the canonical audio to recognize.
	AudioURI   string
	SampleRate int // 0 when unknown
	Channels   int // 0 when unknown
	// Duration of the audio in seconds, 0 when unknown.
	Duration float64
	// Hints bias recognition when no phrase set is available.
	Hints []string
	// LanguageCode overrides the configured recognition language when set.
	LanguageCode string
}

// WeightedPhrase is one phrase-set entry.
type WeightedPhrase struct {
	Value string
	Boost float32
}

// Recognizer defines the interface for speech recognition providers.
type Recognizer interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Recognize returns the recognized words with offsets relative to the
	// start of the audio. A nil slice and nil error mean the provider had no
	// confident result.
	Recognize(ctx context.Context, req Request) ([]models.WordSpan, error)

	// CreatePhraseSet registers a vocabulary and returns its identifier.
	CreatePhraseSet(ctx context.Context, phrases []WeightedPhrase) (string, error)

	// DeletePhraseSet removes a phrase set.
	DeletePhraseSet(ctx context.Context, id string) error
}
