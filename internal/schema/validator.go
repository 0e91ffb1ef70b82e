// Package schema validates pipeline messages before they reach a stage.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"speech-scoring-service/internal/models"
)

// ErrInvalidMessage marks payloads that can never be processed. Consumers
// dead-letter them without retrying.
var ErrInvalidMessage = errors.New("invalid message")

// Validator checks stage messages for the fields their stage cannot do without.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known message type.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.ConversionRequest:
		return v.ValidateConversion(ev)
	case models.RecognitionRequest:
		return v.ValidateRecognition(ev)
	case *models.ConversionRequest:
		return v.ValidateConversion(*ev)
	case *models.RecognitionRequest:
		return v.ValidateRecognition(*ev)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidMessage, event)
	}
}

// ValidateConversion requires a result id and an audio reference.
func (v *Validator) ValidateConversion(req models.ConversionRequest) error {
	if strings.TrimSpace(req.ResultID) == "" {
		return invalid("resultId is required")
	}
	if strings.TrimSpace(req.AudioRef) == "" {
		return invalid("audioRef is required")
	}
	return nil
}

// ValidateRecognition requires a result id and an audio reference, and
// rejects negative or non-finite durations and non-positive audio metadata.
func (v *Validator) ValidateRecognition(req models.RecognitionRequest) error {
	if strings.TrimSpace(req.ResultID) == "" {
		return invalid("resultId is required")
	}
	if strings.TrimSpace(req.AudioRef) == "" {
		return invalid("audioRef is required")
	}
	if math.IsNaN(req.DurationSeconds) || math.IsInf(req.DurationSeconds, 0) || req.DurationSeconds < 0 {
		return invalid(fmt.Sprintf("durationSeconds %v out of range", req.DurationSeconds))
	}
	if req.SampleRate != nil && *req.SampleRate <= 0 {
		return invalid("sampleRate must be positive")
	}
	if req.Channels != nil && *req.Channels <= 0 {
		return invalid("channels must be positive")
	}
	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, reason)
}
