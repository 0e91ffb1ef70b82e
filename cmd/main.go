package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"speech-scoring-service/internal/app"
	"speech-scoring-service/internal/config"
	"speech-scoring-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = cfg.Observability.LogFormat
	logging.Init(logCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("Shutdown requested")
		cancel()
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Service stopped with error")
		application.Close()
		os.Exit(1)
	}
	log.Info().Msg("Service stopped")
}
