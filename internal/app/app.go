// Package app builds the scoring service from its configuration and runs
// the stage consumers and servers until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"speech-scoring-service/internal/command"
	"speech-scoring-service/internal/config"
	"speech-scoring-service/internal/events"
	apphttp "speech-scoring-service/internal/http"
	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/observability"
	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/repository"
	"speech-scoring-service/internal/schema"
	"speech-scoring-service/internal/service/audio"
	"speech-scoring-service/internal/service/matcher"
	"speech-scoring-service/internal/service/pipeline"
	"speech-scoring-service/internal/service/segment"
	"speech-scoring-service/internal/service/stt"
	"speech-scoring-service/internal/service/stt/google"
	"speech-scoring-service/internal/service/stt/mock"
	"speech-scoring-service/internal/storage"
)

// healthService is the gRPC health name of the scoring worker.
const healthService = "speech.scoring.Worker"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Repo       *repository.SQLite
	Store      storage.AudioStore
	Recognizer stt.Recognizer
	Publisher  *events.Publisher
	Pipeline   *pipeline.Pipeline
	Vocabulary *pipeline.Vocabulary

	converter  *audio.Converter
	recognizer *segment.Recognizer
	scorer     *matcher.Matcher
	closers    []func() error
}

// New constructs every component from cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Logger.Info().
		Str("stt", a.Recognizer.Name()).
		Str("storage", cfg.Storage.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Speech scoring application created")
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg := a.Cfg
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka enabled but KAFKA_BROKERS is empty")
	}

	repo, err := repository.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)

	if a.Store, err = a.newStore(ctx); err != nil {
		return err
	}
	if a.Recognizer, err = a.newRecognizer(ctx); err != nil {
		return err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicConversion:  cfg.Kafka.TopicConversion,
		TopicRecognition: cfg.Kafka.TopicRecognition,
		TopicAnalytics:   cfg.Kafka.TopicAnalytics,
		TopicDeadLetter:  cfg.Kafka.TopicDeadLetter,
		Principal:        cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	runner := command.ExecRunner{}
	a.converter = audio.NewConverter(runner, audio.NewFFProbe(cfg.Audio.FFprobePath), cfg.Audio.FFmpegPath, audio.Limits{
		MaxBytes:    cfg.Audio.MaxBytes,
		MaxDuration: cfg.Audio.MaxDuration,
	})
	a.recognizer = segment.New(a.Recognizer, segment.NewStoreCutter(a.Store, a.converter))
	phonemizer, err := newPhonemizer(cfg.Matcher, runner)
	if err != nil {
		return err
	}
	a.scorer = matcher.New(phonemizer)

	a.Pipeline = a.NewPipeline(a.Publisher)
	a.Vocabulary = pipeline.NewVocabulary(a.Recognizer, float32(cfg.STT.PhraseBoost))
	return nil
}

// NewPipeline returns a pipeline over the application components that
// emits its messages to pub.
func (a *Application) NewPipeline(pub pipeline.Publisher) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{Language: a.Cfg.Matcher.Language},
		a.Repo, a.Store, a.converter, a.recognizer, a.scorer, pub)
}

func (a *Application) newStore(ctx context.Context) (storage.AudioStore, error) {
	cfg := a.Cfg
	workDir := filepath.Join(cfg.Service.WorkDir, "speech-scoring")
	switch cfg.Storage.Provider {
	case "gcs":
		s, err := storage.NewGCS(ctx, cfg.Storage.Bucket, workDir, cfg.Service.CredentialsFile, cfg.Storage.SignedURLTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "local", "":
		return storage.NewLocal(cfg.Storage.LocalDir, workDir)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func (a *Application) newRecognizer(ctx context.Context) (stt.Recognizer, error) {
	cfg := a.Cfg
	switch cfg.STT.Provider {
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.STT.LanguageCode
		gc.SampleRateHz = cfg.STT.SampleRateHz
		gc.AudioEncoding = cfg.STT.AudioEncoding
		gc.Model = cfg.STT.Model
		gc.ProjectID = cfg.STT.ProjectID
		gc.Location = cfg.STT.Location
		gc.HintBoost = float32(cfg.STT.PhraseBoost)
		gc.CredentialsFile = cfg.Service.CredentialsFile
		rec, err := google.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rec.Close)
		return rec, nil
	case "mock", "":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}

func newPhonemizer(cfg config.MatcherConfig, runner command.Runner) (matcher.Phonemizer, error) {
	if cfg.Phonemizer == "fold" {
		return matcher.FoldPhonemizer{}, nil
	}
	return matcher.NewEspeakPhonemizer(runner, cfg.EspeakPath, cfg.CacheSize)
}

// Permanent reports stage errors that redelivery cannot fix.
func Permanent(err error) bool {
	return errors.Is(err, audio.ErrUnsupportedEncoding) ||
		errors.Is(err, audio.ErrLimitExceeded) ||
		errors.Is(err, repository.ErrNotFound)
}

// Consumers returns one consumer per stage topic.
func (a *Application) Consumers() []*events.Consumer {
	cfg := a.Cfg.Kafka
	validator := schema.New()
	consumerConfig := func(topic string) events.ConsumerConfig {
		return events.ConsumerConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       topic,
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     2 * time.Second,
			Permanent:   Permanent,
		}
	}
	return []*events.Consumer{
		events.NewConsumer(consumerConfig(cfg.TopicConversion),
			events.JSON[models.ConversionRequest](validator.ValidateConversion, a.Pipeline.Convert), a.Publisher),
		events.NewConsumer(consumerConfig(cfg.TopicRecognition),
			events.JSON[models.RecognitionRequest](validator.ValidateRecognition, a.Pipeline.Score), a.Publisher),
	}
}

// Run serves HTTP and gRPC and, with Kafka enabled, consumes the stage
// topics until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Speech scoring service starting")

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	httpServer := observability.NewServer(a.Cfg.Service.HTTPAddr, apphttp.NewRouter(a.Repo))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Serve)
	g.Go(func() error {
		a.Logger.Info().Str("port", a.Cfg.Service.GRPCPort).Msg("gRPC health server started")
		return grpcServer.Serve(lis)
	})

	if a.Cfg.Kafka.Enabled {
		for _, c := range a.Consumers() {
			c := c
			g.Go(func() error {
				defer c.Close()
				return c.Run(ctx)
			})
		}
	} else {
		a.Logger.Warn().Msg("Kafka disabled, stage consumers not started")
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info().Msg("Speech scoring service shutting down")
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases every component in reverse creation order.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
