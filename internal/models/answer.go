package models

import (
	"strings"
	"time"
)

// AudioSegment references immutable audio bytes held by the audio store.
type AudioSegment struct {
	URI        string
	SampleRate int
	Channels   int
	Duration   float64 // seconds
}

// WordSpan is one recognized token with its offsets from the start of the clip.
type WordSpan struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// Length returns the span duration in seconds.
func (w WordSpan) Length() float64 {
	return (w.End - w.Start).Seconds()
}

// Transcript is a list of word spans ordered by start time.
type Transcript []WordSpan

// Words returns the bare tokens in order.
func (t Transcript) Words() []string {
	out := make([]string, 0, len(t))
	for _, w := range t {
		out = append(out, w.Word)
	}
	return out
}

// Text joins the tokens with single spaces.
func (t Transcript) Text() string {
	return strings.Join(t.Words(), " ")
}

// Vocabulary is the expected word list of a question plus the recognizer-side
// phrase set biasing recognition toward it.
type Vocabulary struct {
	Type        QuestionType
	Words       []string
	PhraseSetID string
}

// MatchResult is the outcome of reconciling a transcript against the vocabulary.
type MatchResult struct {
	RightCount int
	Transcript []string
}

// PendingAnswer is one learner's answer to one question.
type PendingAnswer struct {
	ID             string
	ExamID         string
	QuestionID     string
	GroupID        string
	OrganizationID string
	UserID         string
	AudioURL       string
	Result         []string
	RightCount     int
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExamCompletion is the per exam and user aggregate status.
type ExamCompletion struct {
	ExamID    string
	UserID    string
	Status    Status
	UpdatedAt time.Time
}

// Question is the subset of question data the scoring stage reads.
type Question struct {
	ID          string
	ExamID      string
	Title       string
	Type        QuestionType
	Words       []string
	PhraseSetID string
	Language    string
}

// Vocabulary returns the question's expected vocabulary.
func (q Question) Vocabulary() Vocabulary {
	return Vocabulary{Type: q.Type, Words: q.Words, PhraseSetID: q.PhraseSetID}
}
