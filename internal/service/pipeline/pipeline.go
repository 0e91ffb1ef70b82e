// Package pipeline implements the message-driven scoring stages: Convert
// canonicalizes an uploaded recording, Score recognizes and grades it,
// then advances the exam completion and emits an analytic record.
package pipeline

import (
	"context"
	"time"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/service/audio"
	"speech-scoring-service/internal/service/segment"
	"speech-scoring-service/internal/storage"
)

// AnswerStore is the persistence the stages read and mutate.
type AnswerStore interface {
	GetAnswer(ctx context.Context, id string) (models.PendingAnswer, error)
	GetQuestion(ctx context.Context, id string) (models.Question, error)
	MarkInProgress(ctx context.Context, id string) (bool, error)
	FinishAnswer(ctx context.Context, id string, result models.MatchResult, audioURL string) (bool, error)
	CompleteExamIfDone(ctx context.Context, examID, userID string) (bool, error)
	AnalyticContext(ctx context.Context, answerID string) (models.AnalyticRecord, error)
}

// Publisher emits the messages produced by the stages.
type Publisher interface {
	PublishRecognition(ctx context.Context, key string, event any) error
	PublishAnalytics(ctx context.Context, key string, event any) error
}

// Converter turns a local recording into canonical audio.
type Converter interface {
	Canonicalize(ctx context.Context, localPath, contentType string) (audio.Canonical, error)
}

// TranscriptRecognizer produces the transcript of a clip.
type TranscriptRecognizer interface {
	Recognize(ctx context.Context, job segment.Job) (models.Transcript, error)
}

// Scorer reconciles a transcript against the expected words.
type Scorer interface {
	Score(ctx context.Context, expected []string, text string, qtype models.QuestionType, lang string) (models.MatchResult, error)
}

// Config holds pipeline settings.
type Config struct {
	// Language is used for questions without their own language.
	Language string
}

// Pipeline wires the stage collaborators together.
type Pipeline struct {
	answers    AnswerStore
	store      storage.AudioStore
	converter  Converter
	recognizer TranscriptRecognizer
	scorer     Scorer
	publisher  Publisher
	language   string
	now        func() time.Time
}

// New creates a Pipeline.
func New(cfg Config, answers AnswerStore, store storage.AudioStore, converter Converter,
	recognizer TranscriptRecognizer, scorer Scorer, publisher Publisher) *Pipeline {
	lang := cfg.Language
	if lang == "" {
		lang = "en-US"
	}
	return &Pipeline{
		answers:    answers,
		store:      store,
		converter:  converter,
		recognizer: recognizer,
		scorer:     scorer,
		publisher:  publisher,
		language:   lang,
		now:        time.Now,
	}
}
