package models

import (
	"errors"
	"fmt"
)

// Status is the progress of a pending answer or an exam completion.
type Status int

const (
	// StatusNotStarted - answer audio submitted, nothing processed yet.
	StatusNotStarted Status = iota
	// StatusInProgress - audio converted, waiting for recognition and scoring.
	StatusInProgress
	// StatusFinished - scored. Terminal.
	StatusFinished
)

// String returns the persisted representation of the status.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true once the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusFinished
}

// ParseStatus parses the persisted representation.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "NOT_STARTED":
		return StatusNotStarted, nil
	case "IN_PROGRESS":
		return StatusInProgress, nil
	case "FINISHED":
		return StatusFinished, nil
	default:
		return StatusNotStarted, fmt.Errorf("unknown status %q", v)
	}
}

// Errors for invalid status transitions.
var (
	ErrAlreadyFinished   = errors.New("answer already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Transition validates a move from s to next.
//
// Allowed moves:
//
//	NOT_STARTED → IN_PROGRESS → FINISHED
//	NOT_STARTED ──────────────→ FINISHED
//
// Repeating IN_PROGRESS is allowed so a redelivered conversion is harmless.
// Nothing leaves FINISHED.
func (s Status) Transition(next Status) error {
	if s.IsTerminal() {
		return ErrAlreadyFinished
	}
	switch next {
	case StatusInProgress, StatusFinished:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
}

// QuestionType selects how expected words are compared against the transcript.
type QuestionType int

const (
	// QuestionPhrases compares literal tokens. It is the default.
	QuestionPhrases QuestionType = iota
	// QuestionWords compares phonemic representations of isolated words.
	QuestionWords
	// QuestionComplexWords is graded like QuestionWords.
	QuestionComplexWords
)

// String returns the persisted representation of the question type.
func (t QuestionType) String() string {
	switch t {
	case QuestionWords:
		return "WORDS"
	case QuestionComplexWords:
		return "COMPLEX_WORDS"
	default:
		return "PHRASES"
	}
}

// Phonetic reports whether the type is graded on phonemes.
func (t QuestionType) Phonetic() bool {
	return t == QuestionWords || t == QuestionComplexWords
}

// ParseQuestionType maps a persisted value to a QuestionType, defaulting to PHRASES.
func ParseQuestionType(v string) QuestionType {
	switch v {
	case "WORDS":
		return QuestionWords
	case "COMPLEX_WORDS":
		return QuestionComplexWords
	default:
		return QuestionPhrases
	}
}
