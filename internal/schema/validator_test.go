package schema

import (
	"errors"
	"math"
	"testing"

	"speech-scoring-service/internal/models"
)

func TestValidator_Conversion(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		req     models.ConversionRequest
		wantErr bool
	}{
		{"valid", models.ConversionRequest{ResultID: "r-1", AudioRef: "gs://b/a.webm"}, false},
		{"missing result", models.ConversionRequest{AudioRef: "gs://b/a.webm"}, true},
		{"blank audio", models.ConversionRequest{ResultID: "r-1", AudioRef: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if tt.wantErr && !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("expected ErrInvalidMessage, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidator_Recognition(t *testing.T) {
	v := New()
	zero := 0
	rate := 16000

	tests := []struct {
		name    string
		req     models.RecognitionRequest
		wantErr bool
	}{
		{"valid", models.RecognitionRequest{ResultID: "r-1", AudioRef: "gs://b/a.flac", DurationSeconds: 3, SampleRate: &rate}, false},
		{"zero duration", models.RecognitionRequest{ResultID: "r-1", AudioRef: "gs://b/a.flac"}, false},
		{"negative duration", models.RecognitionRequest{ResultID: "r-1", AudioRef: "gs://b/a.flac", DurationSeconds: -1}, true},
		{"nan duration", models.RecognitionRequest{ResultID: "r-1", AudioRef: "gs://b/a.flac", DurationSeconds: math.NaN()}, true},
		{"zero sample rate", models.RecognitionRequest{ResultID: "r-1", AudioRef: "gs://b/a.flac", SampleRate: &zero}, true},
		{"zero channels", models.RecognitionRequest{ResultID: "r-1", AudioRef: "gs://b/a.flac", Channels: &zero}, true},
		{"missing audio", models.RecognitionRequest{ResultID: "r-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if tt.wantErr && !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("expected ErrInvalidMessage, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidator_UnknownType(t *testing.T) {
	if err := New().Validate("hello"); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage for unknown type, got %v", err)
	}
}
