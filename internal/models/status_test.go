package models

import (
	"errors"
	"testing"
	"time"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusNotStarted, "NOT_STARTED"},
		{StatusInProgress, "IN_PROGRESS"},
		{StatusFinished, "FINISHED"},
		{Status(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("Status(%d).String() = %v, want %v", tt.status, got, tt.expected)
		}
	}
}

func TestParseStatus_RoundTrip(t *testing.T) {
	for _, s := range []Status{StatusNotStarted, StatusInProgress, StatusFinished} {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%s): unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStatus(%s) = %v", s, got)
		}
	}

	if _, err := ParseStatus("DONE"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     Status
		isTerminal bool
	}{
		{StatusNotStarted, false},
		{StatusInProgress, false},
		{StatusFinished, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.isTerminal {
			t.Errorf("Status(%s).IsTerminal() = %v, want %v", tt.status, got, tt.isTerminal)
		}
	}
}

func TestStatus_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr error
	}{
		{"start progress", StatusNotStarted, StatusInProgress, nil},
		{"finish from progress", StatusInProgress, StatusFinished, nil},
		{"finish directly", StatusNotStarted, StatusFinished, nil},
		{"repeat progress", StatusInProgress, StatusInProgress, nil},
		{"back to not started", StatusInProgress, StatusNotStarted, ErrInvalidTransition},
		{"leave finished", StatusFinished, StatusInProgress, ErrAlreadyFinished},
		{"finish twice", StatusFinished, StatusFinished, ErrAlreadyFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.Transition(tt.to)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestQuestionType_Parse(t *testing.T) {
	tests := []struct {
		input    string
		expected QuestionType
		phonetic bool
	}{
		{"WORDS", QuestionWords, true},
		{"COMPLEX_WORDS", QuestionComplexWords, true},
		{"PHRASES", QuestionPhrases, false},
		{"", QuestionPhrases, false},
		{"words", QuestionPhrases, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseQuestionType(tt.input)
			if got != tt.expected {
				t.Errorf("ParseQuestionType(%q) = %v, want %v", tt.input, got, tt.expected)
			}
			if got.Phonetic() != tt.phonetic {
				t.Errorf("%v.Phonetic() = %v, want %v", got, got.Phonetic(), tt.phonetic)
			}
		})
	}
}

func TestTranscript_Text(t *testing.T) {
	tr := Transcript{
		{Word: "hola", Start: 0, End: 500 * time.Millisecond},
		{Word: "casa", Start: time.Second, End: 1500 * time.Millisecond},
	}

	if got := tr.Text(); got != "hola casa" {
		t.Errorf("expected 'hola casa', got %q", got)
	}
	if got := tr[1].Length(); got != 0.5 {
		t.Errorf("expected length 0.5, got %v", got)
	}
}

func TestRecognitionRequest_Segment(t *testing.T) {
	rate, channels := 16000, 1
	req := RecognitionRequest{AudioRef: "gs://b/a.flac", DurationSeconds: 12.5, SampleRate: &rate, Channels: &channels}

	seg := req.Segment()
	if seg.URI != "gs://b/a.flac" || seg.Duration != 12.5 || seg.SampleRate != 16000 || seg.Channels != 1 {
		t.Errorf("unexpected segment: %+v", seg)
	}

	seg = RecognitionRequest{AudioRef: "gs://b/a.flac"}.Segment()
	if seg.SampleRate != 0 || seg.Channels != 0 {
		t.Errorf("expected zero rate/channels when absent, got %+v", seg)
	}
}
