// rankonly restores a previously trained run and regenerates scores and
// rankings without retraining. It needs the artifact store the original
// run persisted into (DATA_PATH).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"herbrank/internal/cfg"
	"herbrank/internal/metrics"
	"herbrank/internal/pipeline"
	"herbrank/internal/storage"
)

func main() {
	var (
		runID    = flag.String("run-id", "", "run identifier to restore (required)")
		logLevel = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	_ = godotenv.Load()

	if *runID == "" {
		flag.Usage()
		log.Fatal().Msg("a run identifier is required")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if c.DataPath == "" {
		log.Fatal().Msg("DATA_PATH must point at the artifact store of the original run")
	}

	if err := run(c, *runID); err != nil {
		log.Error().Err(err).Msg("predict-only run failed")
		os.Exit(1)
	}
}

func run(c cfg.Settings, runID string) error {
	// RunTimeout only bounds training; predict-only runs have none, so
	// the context here just handles operator interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(c.DataPath)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer store.Close()

	p, err := pipeline.New(c, store, metrics.New(), runID)
	if err != nil {
		return err
	}
	defer p.Close()

	results, err := p.PredictOnly(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("run", p.ID).
		Str("dir", p.OutputDir).
		Int("herbs", len(results.Herbs)).
		Msg("predict-only run complete")
	return nil
}
