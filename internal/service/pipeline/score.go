package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/observability/metrics"
	"speech-scoring-service/internal/repository"
	"speech-scoring-service/internal/service/audio"
	"speech-scoring-service/internal/service/segment"
)

// Score recognizes the canonical recording of an answer, grades it and
// writes the result. A redelivered request for an answer that is missing
// or already FINISHED changes nothing.
func (p *Pipeline) Score(ctx context.Context, req models.RecognitionRequest) error {
	log := logging.WithResult(req.ResultID, "score")
	start := time.Now()

	answer, err := p.answers.GetAnswer(ctx, req.ResultID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.DefaultMetrics.RecordDuplicate("missing")
		log.Warn().Msg("Answer not found, nothing to score")
		return nil
	case err != nil:
		return err
	case errors.Is(answer.Status.Transition(models.StatusFinished), models.ErrAlreadyFinished):
		metrics.DefaultMetrics.RecordDuplicate("finished")
		log.Warn().Msg("Answer already scored, ignoring redelivery")
		// A failed completion check of the first delivery is retried here.
		return p.complete(ctx, log, answer)
	}

	question, err := p.answers.GetQuestion(ctx, answer.QuestionID)
	if err != nil {
		return fmt.Errorf("load question: %w", err)
	}
	vocab := question.Vocabulary()
	if len(req.ExpectedWords) > 0 {
		vocab.Words = req.ExpectedWords
	}
	if req.PhraseSetID != "" {
		vocab.PhraseSetID = req.PhraseSetID
	}
	lang := question.Language
	if lang == "" {
		lang = p.language
	}

	transcript, err := p.recognizer.Recognize(ctx, segment.Job{Audio: req.Segment(), Vocabulary: vocab, Language: question.Language})
	if err != nil {
		return err
	}
	result, err := p.scorer.Score(ctx, vocab.Words, transcript.Text(), vocab.Type, lang)
	if err != nil {
		return fmt.Errorf("score transcript: %w", err)
	}

	audioURL, err := p.publicURL(ctx, req.AudioRef)
	if err != nil {
		return err
	}

	written, err := p.answers.FinishAnswer(ctx, answer.ID, result, audioURL)
	if err != nil {
		return err
	}
	if !written {
		metrics.DefaultMetrics.RecordDuplicate("concurrent")
		log.Warn().Msg("Answer was scored by another delivery")
		return nil
	}

	metrics.DefaultMetrics.RecordScore(vocab.Type.String(), result.RightCount)
	log.Info().
		Str("questionType", vocab.Type.String()).
		Int("rightCount", result.RightCount).
		Int("expected", len(vocab.Words)).
		Int("recognized", len(transcript)).
		Dur("elapsed", time.Since(start)).
		Msg("Answer scored")

	if err := p.complete(ctx, log, answer); err != nil {
		return err
	}
	p.emitAnalytics(ctx, log, answer.ID, vocab.Words, result)
	return nil
}

func (p *Pipeline) publicURL(ctx context.Context, audioRef string) (string, error) {
	objectPath, err := p.store.ObjectPath(audioRef)
	if err != nil {
		return "", fmt.Errorf("canonical audio path: %w", err)
	}
	url, err := p.store.SignedURL(ctx, objectPath, audio.CanonicalContentType, http.MethodGet)
	if err != nil {
		return "", fmt.Errorf("sign audio url: %w", err)
	}
	return url, nil
}

// complete moves the exam of the answer's user to FINISHED once every
// question has a FINISHED answer.
func (p *Pipeline) complete(ctx context.Context, log zerolog.Logger, answer models.PendingAnswer) error {
	finished, err := p.answers.CompleteExamIfDone(ctx, answer.ExamID, answer.UserID)
	if err != nil {
		return fmt.Errorf("exam completion: %w", err)
	}
	if finished {
		metrics.DefaultMetrics.RecordExamCompleted()
		log.Info().Str("examId", answer.ExamID).Str("userId", answer.UserID).Msg("Exam completed")
	}
	return nil
}

// emitAnalytics submits the analytic record of a scored answer. Failures are
// logged only; the score stays written.
func (p *Pipeline) emitAnalytics(ctx context.Context, log zerolog.Logger, answerID string, expected []string, result models.MatchResult) {
	record, err := p.answers.AnalyticContext(ctx, answerID)
	if err == nil {
		record.EventType = models.EventAnswerScored
		record.RecordID = uuid.NewString()
		record.ExpectedWords = expected
		record.RecognizedWords = result.Transcript
		record.RightCount = result.RightCount
		record.Timestamp = p.now().UnixMilli()
		err = p.publisher.PublishAnalytics(ctx, answerID, record)
	}
	if err != nil {
		metrics.DefaultMetrics.RecordAnalyticsFailure()
		log.Warn().Err(err).Msg("Analytics submission failed")
	}
}
