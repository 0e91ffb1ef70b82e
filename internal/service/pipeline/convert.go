package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/observability/metrics"
	"speech-scoring-service/internal/repository"
	"speech-scoring-service/internal/schema"
	"speech-scoring-service/internal/service/audio"
)

// Convert fetches the uploaded recording, makes it canonical and emits a
// recognition request for it. Recordings of answers that are missing or
// already FINISHED are skipped.
func (p *Pipeline) Convert(ctx context.Context, req models.ConversionRequest) error {
	log := logging.WithResult(req.ResultID, "convert")
	start := time.Now()

	answer, err := p.answers.GetAnswer(ctx, req.ResultID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.DefaultMetrics.RecordDuplicate("convert_missing")
		log.Warn().Msg("Answer not found, skipping conversion")
		return nil
	case err != nil:
		return err
	case errors.Is(answer.Status.Transition(models.StatusInProgress), models.ErrAlreadyFinished):
		metrics.DefaultMetrics.RecordDuplicate("convert_finished")
		log.Warn().Msg("Answer already finished, skipping conversion")
		return nil
	}

	objectPath, err := p.store.ObjectPath(req.AudioRef)
	if err != nil {
		return fmt.Errorf("%w: audioRef: %v", schema.ErrInvalidMessage, err)
	}
	contentType, err := p.store.ContentType(ctx, objectPath)
	if err != nil {
		log.Warn().Err(err).Msg("Content type lookup failed, probing instead")
		contentType = ""
	}

	local, err := p.store.Download(ctx, req.AudioRef, uuid.NewString()+path.Ext(objectPath))
	if err != nil {
		metrics.DefaultMetrics.RecordConversion("failed", 0)
		return fmt.Errorf("download recording: %w", err)
	}
	defer os.Remove(local)

	canon, err := p.converter.Canonicalize(ctx, local, contentType)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, audio.ErrUnsupportedEncoding) || errors.Is(err, audio.ErrLimitExceeded) {
			outcome = "unsupported"
		}
		metrics.DefaultMetrics.RecordConversion(outcome, 0)
		log.Error().Err(err).Str("contentType", contentType).Msg("Conversion failed")
		return err
	}

	audioRef := req.AudioRef
	outcome := "passthrough"
	switch {
	case canon.Transcoded:
		defer os.Remove(canon.Path)
		outcome = "transcoded"
		fallthrough
	case !strings.EqualFold(path.Ext(objectPath), ".flac"):
		// Pass-through FLAC without a .flac name is stored under the canonical name.
		audioRef, err = p.store.UploadFile(ctx, canonicalPath(objectPath), canon.Path)
		if err != nil {
			metrics.DefaultMetrics.RecordConversion("failed", 0)
			return fmt.Errorf("upload canonical audio: %w", err)
		}
	}

	if changed, err := p.answers.MarkInProgress(ctx, req.ResultID); err != nil {
		return err
	} else if !changed {
		log.Debug().Msg("Answer was already in progress")
	}

	next := models.RecognitionRequest{
		EventType:       models.EventRecognitionRequested,
		MessageID:       uuid.NewString(),
		ResultID:        req.ResultID,
		PhraseSetID:     req.PhraseSetID,
		AudioRef:        audioRef,
		ExpectedWords:   req.ExpectedWords,
		DurationSeconds: canon.Duration,
		Timestamp:       p.now().UnixMilli(),
	}
	// Unknown metadata is omitted rather than sent as zero.
	if canon.SampleRate > 0 {
		sampleRate := canon.SampleRate
		next.SampleRate = &sampleRate
	}
	if canon.Channels > 0 {
		channels := canon.Channels
		next.Channels = &channels
	}
	if err := p.publisher.PublishRecognition(ctx, req.ResultID, next); err != nil {
		return fmt.Errorf("publish recognition request: %w", err)
	}

	metrics.DefaultMetrics.RecordConversion(outcome, canon.Duration)
	log.Info().
		Str("outcome", outcome).
		Str("audioRef", audioRef).
		Float64("duration", canon.Duration).
		Dur("elapsed", time.Since(start)).
		Msg("Recording converted")
	return nil
}

// canonicalPath names the canonical copy next to the upload:
// "answers/a-1.webm" becomes "answers/a-1.flac".
func canonicalPath(objectPath string) string {
	base := strings.TrimSuffix(objectPath, path.Ext(objectPath))
	if strings.EqualFold(path.Ext(objectPath), ".flac") {
		return base + ".canonical.flac"
	}
	return base + ".flac"
}
