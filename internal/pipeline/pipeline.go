// Package pipeline wires the full ranking flow: resolve targets, sample
// training sets, train the ensemble, score the library, aggregate and
// report. A Run owns one run directory and its artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"herbrank/internal/cfg"
	"herbrank/internal/ensemble"
	"herbrank/internal/metrics"
	"herbrank/internal/predict"
	"herbrank/internal/ranking"
	"herbrank/internal/refdata"
	"herbrank/internal/sampling"
	"herbrank/internal/scorer"
	"herbrank/internal/storage"
)

// Run is one pipeline execution with its own output directory and log
// file. The same Run type drives both full runs and predict-only reruns;
// the run ID keys all persisted artifacts.
type Run struct {
	ID        string
	Cfg       cfg.Settings
	Store     *storage.RunStore // nil disables artifact persistence
	Metrics   *metrics.Metrics  // nil disables instrumentation
	OutputDir string

	logFile  *os.File
	warnings []string
}

// New prepares a run: creates the output directory and tees the global
// logger into a run.log inside it. An empty runID gets a timestamped one.
func New(c cfg.Settings, store *storage.RunStore, m *metrics.Metrics, runID string) (*Run, error) {
	if runID == "" {
		runID = fmt.Sprintf("entrez_run_%s", time.Now().Format("20060102_150405"))
	}

	outputDir := filepath.Join(c.OutputsDir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	r := &Run{
		ID:        runID,
		Cfg:       c,
		Store:     store,
		Metrics:   m,
		OutputDir: outputDir,
	}

	logPath := filepath.Join(outputDir, "run.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Warn().Err(err).Str("path", logPath).Msg("run log unavailable, console only")
	} else {
		r.logFile = f
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	}

	log.Info().Str("run", runID).Str("dir", outputDir).Msg("run initialized")
	return r, nil
}

// Close releases the run log file.
func (r *Run) Close() error {
	if r.logFile != nil {
		return r.logFile.Close()
	}
	return nil
}

func (r *Run) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	log.Warn().Msg(msg)
}

// Execute runs the full pipeline for the given gene targets and writes
// all reports into the run directory. Degradations (failed replicates,
// unscorable compounds) are recorded as warnings in the results; only
// conditions that make the output meaningless return an error.
func (r *Run) Execute(ctx context.Context, targets []string) (*ranking.Results, error) {
	if r.Metrics != nil {
		r.Metrics.RunsTotal.Inc()
	}
	res, err := r.execute(ctx, targets)
	if err != nil && r.Metrics != nil {
		r.Metrics.RunFailures.Inc()
	}
	return res, err
}

func (r *Run) execute(ctx context.Context, targets []string) (*ranking.Results, error) {
	c := r.Cfg

	tables, err := refdata.Load(c)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	r.fillMissingStructures(tables)

	resolution, err := tables.Resolve(targets, c.MinPositives)
	if err != nil {
		if !errors.Is(err, refdata.ErrInsufficientEvidence) {
			return nil, err
		}
		// Degraded evidence, not a hard stop: train anyway and carry
		// the caveat into the reports.
		r.warn("%v, rankings carry reduced confidence", err)
	}

	datasets, err := sampling.Draw(resolution.Positives, resolution.Pool, c.EnsembleSize, c.NegativeRatio, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("draw training sets: %w", err)
	}

	sc, err := scorer.New(c)
	if err != nil {
		return nil, err
	}

	// The run timeout bounds training only: an expired deadline skips
	// replicates that have not started, shrinking the ensemble, while
	// prediction and ranking still run on the already-trained folds.
	trainCtx := ctx
	if c.RunTimeout > 0 {
		var cancel context.CancelFunc
		trainCtx, cancel = context.WithTimeout(ctx, c.RunTimeout)
		defer cancel()
	}

	trainer := ensemble.New(sc, c.TrainWorkers, r.Store, r.Metrics)
	outcomes, err := trainer.Train(trainCtx, storage.Manifest{
		RunID:     r.ID,
		Seed:      c.Seed,
		Targets:   targets,
		Positives: len(resolution.Positives),
	}, datasets)
	if err != nil {
		return nil, err
	}
	usable := ensemble.Usable(outcomes)
	if len(usable) < len(datasets) {
		r.warn("ensemble degraded: %d of %d replicates trained", len(usable), len(datasets))
		for _, o := range outcomes {
			if o.Err != nil {
				r.warn("replicate %d failed: %v", o.Fold, o.Err)
			}
		}
	}

	mx, unscorable, err := predict.Run(ctx, outcomes, tables.Library(), c.PredictWorkers, r.Metrics)
	if err != nil {
		return nil, err
	}
	if r.Store != nil {
		if err := r.Store.PutScores(r.ID, mx.Rows()); err != nil {
			r.warn("score matrix persistence failed: %v", err)
		}
	}

	results := r.aggregate(tables, mx, unscorable)
	results.Scorer = sc.Name()
	results.Seed = c.Seed
	results.EnsembleSize = len(datasets)
	results.UsableFolds = mx.Folds
	results.Targets = targets
	results.Positives = len(resolution.Positives)

	if err := r.report(results); err != nil {
		return nil, err
	}
	return results, nil
}

// PredictOnly restores a trained ensemble and reruns scoring and
// ranking without training. Persisted score rows are reused when
// present; otherwise inference reruns from the checkpoints.
func (r *Run) PredictOnly(ctx context.Context) (*ranking.Results, error) {
	c := r.Cfg

	sc, err := scorer.New(c)
	if err != nil {
		return nil, err
	}

	outcomes, manifest, err := ensemble.Load(r.Store, sc, r.ID)
	if err != nil {
		return nil, err
	}

	tables, err := refdata.Load(c)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	r.fillMissingStructures(tables)

	var mx *predict.Matrix
	var unscorable []string

	rows, err := r.Store.GetScores(r.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		mx, unscorable, err = predict.FromRows(rows, manifest.UsableFolds, tables.Library())
		if err != nil {
			return nil, err
		}
		log.Info().Int("compounds", len(mx.Compounds)).Msg("score matrix restored from store")
	} else {
		mx, unscorable, err = predict.Run(ctx, outcomes, tables.Library(), c.PredictWorkers, r.Metrics)
		if err != nil {
			return nil, err
		}
		if err := r.Store.PutScores(r.ID, mx.Rows()); err != nil {
			r.warn("score matrix persistence failed: %v", err)
		}
	}

	results := r.aggregate(tables, mx, unscorable)
	results.Scorer = manifest.Scorer
	results.Seed = manifest.Seed
	results.Targets = manifest.Targets
	results.Positives = manifest.Positives
	results.EnsembleSize = manifest.EnsembleSize
	results.UsableFolds = manifest.UsableFolds
	if len(manifest.UsableFolds) < manifest.EnsembleSize {
		r.warn("ensemble degraded: %d of %d replicates trained", len(manifest.UsableFolds), manifest.EnsembleSize)
		results.Warnings = r.warnings
	}

	if err := r.report(results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Run) fillMissingStructures(tables *refdata.Tables) {
	if !r.Cfg.PubChemLookup {
		return
	}
	client := refdata.NewPubChemClient(r.Cfg.PubChemURL, r.Cfg.SmilesCacheFile, r.Cfg.LookupTimeout)
	if filled := client.FillMissing(tables.Library()); filled > 0 {
		log.Info().Int("filled", filled).Msg("missing structures resolved remotely")
	}
}

func (r *Run) aggregate(tables *refdata.Tables, mx *predict.Matrix, unscorable []string) *ranking.Results {
	params := ranking.Params{
		BayesAlpha:  r.Cfg.BayesAlpha,
		HighQuality: r.Cfg.HighQualityThreshold,
		UltraHigh:   r.Cfg.UltraHighThreshold,
	}

	compounds := ranking.ReduceCompounds(mx, params)
	if r.Metrics != nil {
		for _, c := range compounds {
			r.Metrics.EnsembleScores.Observe(c.Ensemble)
		}
	}
	if len(unscorable) > 0 {
		r.warn("%d compounds unscorable by every replicate", len(unscorable))
	}

	herbs := ranking.RankHerbs(tables.Herbs(), compounds, params)
	log.Info().Int("compounds", len(compounds)).Int("herbs", len(herbs)).Msg("aggregation complete")

	return &ranking.Results{
		RunID:      r.ID,
		Unscorable: unscorable,
		Warnings:   r.warnings,
		Compounds:  compounds,
		Herbs:      herbs,
	}
}

func (r *Run) report(results *ranking.Results) error {
	results.Warnings = r.warnings
	reporter := ranking.NewReporter(results, r.OutputDir)
	if err := reporter.GenerateReport(); err != nil {
		return fmt.Errorf("generate reports: %w", err)
	}
	reporter.PrintSummary()
	return nil
}
