package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/observability/metrics"
	"speech-scoring-service/internal/service/stt"
)

// Cutter extracts a sub-range of a clip as a new stored segment.
type Cutter interface {
	Cut(ctx context.Context, audio models.AudioSegment, r Range) (models.AudioSegment, error)
}

// Job is one recognition of a clip at a recursion depth. The clip duration
// in Audio bounds the trailing range.
type Job struct {
	Audio      models.AudioSegment
	Vocabulary models.Vocabulary
	// Language is passed to the recognizer; empty uses its default.
	Language string
	Depth    int
}

// Recognizer runs recognition with gap re-segmentation.
type Recognizer struct {
	stt    stt.Recognizer
	cutter Cutter
	log    zerolog.Logger
}

// New creates a Recognizer.
func New(rec stt.Recognizer, cutter Cutter) *Recognizer {
	return &Recognizer{
		stt:    rec,
		cutter: cutter,
		log:    logging.WithComponent("segment"),
	}
}

// Recognize returns the transcript of job.Audio with word offsets relative to
// its start. Failures of the top-level recognition are returned. Failures
// inside a re-submitted range are logged and contribute no words.
func (r *Recognizer) Recognize(ctx context.Context, job Job) (models.Transcript, error) {
	start := time.Now()
	words, err := r.stt.Recognize(ctx, stt.Request{
		PhraseSetID:  job.Vocabulary.PhraseSetID,
		AudioURI:     job.Audio.URI,
		SampleRate:   job.Audio.SampleRate,
		Channels:     job.Audio.Channels,
		Duration:     job.Audio.Duration,
		Hints:        job.Vocabulary.Words,
		LanguageCode: job.Language,
	})
	metrics.DefaultMetrics.RecordRecognizerCall(r.stt.Name(), job.Depth, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("recognize %s at depth %d: %w", job.Audio.URI, job.Depth, err)
	}
	if len(words) == 0 {
		metrics.DefaultMetrics.RecordEmptyRecognition()
		return models.Transcript{}, nil
	}

	out := make(models.Transcript, 0, len(words))
	for _, step := range Plan(words, job.Audio.Duration, job.Depth) {
		if step.Kind == Keep {
			out = append(out, step.Word)
			continue
		}
		out = append(out, r.rerun(ctx, job, step)...)
	}
	return out, nil
}

// rerun recognizes step.Range one level deeper and shifts the result back
// into the parent's time base.
func (r *Recognizer) rerun(ctx context.Context, job Job, step Step) models.Transcript {
	metrics.DefaultMetrics.RecordGapRerun(step.Kind.String())
	log := r.log.With().
		Str("audio", job.Audio.URI).
		Int("depth", job.Depth).
		Str("kind", step.Kind.String()).
		Float64("start", step.Range.Start).
		Float64("end", step.Range.End).
		Logger()
	log.Debug().Msg("Re-running sub-range")

	sub, err := r.cutter.Cut(ctx, job.Audio, step.Range)
	if err != nil {
		metrics.DefaultMetrics.RecordSubRangeError("cut")
		log.Warn().Err(err).Msg("Sub-range cut failed, no words kept")
		return nil
	}

	words, err := r.Recognize(ctx, Job{Audio: sub, Vocabulary: job.Vocabulary, Language: job.Language, Depth: job.Depth + 1})
	if err != nil {
		metrics.DefaultMetrics.RecordSubRangeError("recognize")
		log.Warn().Err(err).Msg("Sub-range recognition failed, no words kept")
		return nil
	}

	offset := step.Range.Offset()
	for i := range words {
		words[i].Start += offset
		words[i].End += offset
	}
	return words
}
