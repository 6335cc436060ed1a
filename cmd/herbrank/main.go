package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"herbrank/internal/cfg"
	"herbrank/internal/metrics"
	"herbrank/internal/pipeline"
	"herbrank/internal/storage"
)

func main() {
	var (
		targetsFlag = flag.String("targets", "", "comma-separated Entrez gene IDs (required)")
		runID       = flag.String("run-id", "", "run identifier; default is timestamped")
		seed        = flag.Int64("seed", 0, "override the configured global seed")
		logLevel    = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	setupLogging(*logLevel)

	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	targets := splitTargets(*targetsFlag)
	if len(targets) == 0 {
		flag.Usage()
		log.Fatal().Msg("at least one target gene ID is required")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if flagWasSet(flag.CommandLine, "seed") {
		c.Seed = *seed
	}

	if err := run(c, *runID, targets); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(c cfg.Settings, runID string, targets []string) error {
	// RunTimeout bounds the training phase inside the pipeline; the
	// signal context here only handles operator interrupts, so a slow
	// training run degrades instead of aborting prediction and ranking.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	startMetricsServer(ctx, c)

	p, err := pipeline.New(c, store, m, runID)
	if err != nil {
		return err
	}
	defer p.Close()

	results, err := p.Execute(ctx, targets)
	if err != nil {
		return err
	}

	log.Info().
		Str("run", p.ID).
		Str("dir", p.OutputDir).
		Int("herbs", len(results.Herbs)).
		Int("warnings", len(results.Warnings)).
		Msg("run complete")
	return nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// flagWasSet reports whether the named flag was given explicitly, so a
// zero value stays distinguishable from "not provided".
func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func splitTargets(s string) []string {
	var targets []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}

// initializeStorage initializes artifact storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.RunStore {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.Open(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// startMetricsServer starts the Prometheus metrics HTTP server when a
// port is configured
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	if c.MetricsPort == 0 {
		return
	}
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
