// Command enqueue submits a recorded answer the way the API layer does: it
// stores the exam rows and the recording, then publishes a conversion
// request. With -inline both stages run in this process instead of Kafka.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"speech-scoring-service/internal/app"
	"speech-scoring-service/internal/config"
	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/service/pipeline"
)

// loopback hands recognition requests straight to the scoring stage.
type loopback struct {
	score func(context.Context, models.RecognitionRequest) error
	next  pipeline.Publisher
}

func (l *loopback) PublishRecognition(ctx context.Context, key string, event any) error {
	return l.score(ctx, event.(models.RecognitionRequest))
}

func (l *loopback) PublishAnalytics(ctx context.Context, key string, event any) error {
	return l.next.PublishAnalytics(ctx, key, event)
}

func main() {
	audioFile := flag.String("audio", "testdata/answer.wav", "Path to the recorded answer")
	examID := flag.String("exam", "exam-demo", "Exam ID")
	questionID := flag.String("question", "question-1", "Question ID")
	userID := flag.String("user", "student-demo", "Student ID")
	qtype := flag.String("type", "WORDS", "Question type: WORDS, COMPLEX_WORDS or PHRASES")
	words := flag.String("words", "cat,dog,house", "Comma separated expected words or phrases")
	lang := flag.String("lang", "", "Question language (default MATCHER_LANGUAGE)")
	phraseSet := flag.Bool("phrase-set", false, "Create a recognizer phrase set for the question")
	inline := flag.Bool("inline", false, "Run the conversion and scoring stages in process")
	flag.Parse()

	logging.Init(logging.Config{Level: "debug", Format: "console", TimeFormat: time.RFC3339, Service: "enqueue"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, config.Load())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}
	defer a.Close()

	question := models.Question{
		ID:       *questionID,
		ExamID:   *examID,
		Title:    "Read aloud",
		Type:     models.ParseQuestionType(*qtype),
		Words:    splitWords(*words),
		Language: *lang,
	}
	// Re-seeding replaces the question row, so its phrase set is released.
	var previous string
	if prev, err := a.Repo.GetQuestion(ctx, question.ID); err == nil {
		previous = prev.PhraseSetID
	}
	if err := seed(ctx, a, question, *userID); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed exam")
	}

	if *phraseSet {
		id, err := a.Vocabulary.Replace(ctx, previous, question.Words)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create phrase set")
		}
		if err := a.Repo.SetPhraseSet(ctx, question.ID, id); err != nil {
			log.Fatal().Err(err).Msg("Failed to store phrase set")
		}
		question.PhraseSetID = id
		log.Info().Str("phraseSetId", id).Msg("Phrase set created")
	} else if err := a.Vocabulary.Release(ctx, previous); err != nil {
		log.Warn().Err(err).Str("phraseSetId", previous).Msg("Stale phrase set not deleted")
	}

	resultID, created, err := a.Repo.CreatePendingAnswer(ctx, models.PendingAnswer{
		ID:             uuid.NewString(),
		ExamID:         question.ExamID,
		QuestionID:     question.ID,
		GroupID:        "class-demo",
		OrganizationID: "school-demo",
		UserID:         *userID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pending answer")
	}
	if !created {
		log.Warn().Str("resultId", resultID).Msg("Answer already exists for this student and question")
	}

	audioRef, err := a.Store.UploadFile(ctx, "answers/"+resultID+filepath.Ext(*audioFile), *audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to upload recording")
	}

	req := models.ConversionRequest{
		EventType:     models.EventConversionRequested,
		MessageID:     uuid.NewString(),
		ResultID:      resultID,
		PhraseSetID:   question.PhraseSetID,
		AudioRef:      audioRef,
		ExpectedWords: question.Words,
		Timestamp:     time.Now().UnixMilli(),
	}

	if *inline {
		lb := &loopback{next: a.Publisher}
		p := a.NewPipeline(lb)
		lb.score = p.Score
		if err := p.Convert(ctx, req); err != nil {
			log.Fatal().Err(err).Msg("Pipeline failed")
		}
		answer, err := a.Repo.GetAnswer(ctx, resultID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read answer")
		}
		log.Info().
			Str("status", answer.Status.String()).
			Int("rightCount", answer.RightCount).
			Strs("result", answer.Result).
			Msg("Answer processed")
		return
	}

	if err := a.Publisher.PublishConversion(ctx, resultID, req); err != nil {
		log.Error().Err(err).Msg("Failed to publish conversion request")
		a.Close()
		os.Exit(1)
	}
	log.Info().Str("resultId", resultID).Str("audioRef", audioRef).Msg("Conversion request published")
}

func seed(ctx context.Context, a *app.Application, q models.Question, userID string) error {
	if err := a.Repo.UpsertOrganization(ctx, "school-demo", "Demo School"); err != nil {
		return err
	}
	if err := a.Repo.UpsertGroup(ctx, "class-demo", "school-demo", "Class A"); err != nil {
		return err
	}
	if err := a.Repo.UpsertUser(ctx, userID, "Demo Student"); err != nil {
		return err
	}
	if err := a.Repo.UpsertExam(ctx, q.ExamID, "Demo Reading"); err != nil {
		return err
	}
	return a.Repo.UpsertQuestion(ctx, q)
}

func splitWords(s string) []string {
	var out []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}
