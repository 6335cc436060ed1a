// Package ensemble trains the PU-bagging replicates. Replicates are
// independent units of work: each fits on its own sampled dataset, is
// checkpointed on success, and fails alone — one bad replicate shrinks the
// ensemble instead of aborting the run.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"herbrank/internal/metrics"
	"herbrank/internal/sampling"
	"herbrank/internal/scorer"
	"herbrank/internal/storage"
)

// ErrTrainingFailed is returned when no replicate trained successfully.
var ErrTrainingFailed = errors.New("ensemble training failed")

// Outcome is the result of one replicate: a fitted predictor or the
// failure that excluded it from aggregation.
type Outcome struct {
	Fold      int
	Predictor scorer.Predictor
	Err       error
	Duration  time.Duration
}

// Trainer runs bounded-parallel replicate training.
type Trainer struct {
	scorer  scorer.Scorer
	workers int
	store   *storage.RunStore // nil disables checkpoint persistence
	metrics *metrics.Metrics
}

func New(sc scorer.Scorer, workers int, store *storage.RunStore, m *metrics.Metrics) *Trainer {
	if workers < 1 {
		workers = 1
	}
	return &Trainer{scorer: sc, workers: workers, store: store, metrics: m}
}

// Train fits one replicate per dataset, at most t.workers concurrently.
// Replicate failures are absorbed into their Outcome; a context deadline
// aborts replicates that have not started, degrading the ensemble. The
// only error returned is ErrTrainingFailed when zero replicates are
// usable. Successful replicates are checkpointed and the run manifest is
// persisted before returning; the caller supplies the run identity and
// resolution metadata (run ID, seed, targets, positive count) in m, the
// trainer fills in what it learns while training.
func (t *Trainer) Train(ctx context.Context, m storage.Manifest, datasets []sampling.Dataset) ([]Outcome, error) {
	runID := m.RunID
	outcomes := make([]Outcome, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for i, ds := range datasets {
		i, ds := i, ds
		g.Go(func() error {
			// A run-level deadline skips replicates that have not
			// started; an in-flight replicate finishes on its own.
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Fold: ds.Fold, Err: fmt.Errorf("not started: %w", err)}
				return nil
			}

			start := time.Now()
			pred, err := t.scorer.Fit(gctx, ds)
			outcomes[i] = Outcome{Fold: ds.Fold, Predictor: pred, Err: err, Duration: time.Since(start)}

			if err != nil {
				log.Error().Err(err).Int("fold", ds.Fold).Msg("replicate training failed")
				if t.metrics != nil {
					t.metrics.ReplicatesFailed.Inc()
				}
				return nil
			}

			log.Info().
				Int("fold", ds.Fold).
				Int("samples", len(ds.Samples)).
				Dur("duration", outcomes[i].Duration).
				Msg("replicate trained")
			if t.metrics != nil {
				t.metrics.ReplicatesTrained.Inc()
				t.metrics.TrainingDuration.Observe(outcomes[i].Duration.Seconds())
			}

			if t.store != nil {
				if err := t.persistCheckpoint(runID, ds.Fold, pred); err != nil {
					// Persistence failure does not invalidate the in-memory
					// predictor; predict-only reruns just lose this fold.
					log.Warn().Err(err).Int("fold", ds.Fold).Msg("checkpoint persistence failed")
				}
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; Wait only joins them

	usable := Usable(outcomes)
	if len(usable) == 0 {
		return outcomes, fmt.Errorf("%w: 0 of %d replicates trained", ErrTrainingFailed, len(datasets))
	}

	if t.store != nil {
		folds := make([]int, len(usable))
		for i, o := range usable {
			folds[i] = o.Fold
		}
		m.Scorer = t.scorer.Name()
		m.EnsembleSize = len(datasets)
		m.UsableFolds = folds
		m.CreatedAt = time.Now().UTC()
		if err := t.store.PutManifest(m); err != nil {
			log.Warn().Err(err).Str("run", runID).Msg("manifest persistence failed")
		}
	}

	return outcomes, nil
}

func (t *Trainer) persistCheckpoint(runID string, fold int, pred scorer.Predictor) error {
	data, err := t.scorer.Save(pred)
	if err != nil {
		return fmt.Errorf("serialize checkpoint: %w", err)
	}
	return t.store.PutCheckpoint(runID, fold, data)
}

// Usable filters outcomes down to the replicates that can score, in fold
// order.
func Usable(outcomes []Outcome) []Outcome {
	var usable []Outcome
	for _, o := range outcomes {
		if o.Err == nil && o.Predictor != nil {
			usable = append(usable, o)
		}
	}
	return usable
}

// Load restores a previously trained ensemble for predict-only mode. A
// missing manifest, a missing checkpoint for any usable fold, or an empty
// usable list all surface storage.ErrMissingArtifact: a silently smaller
// ensemble would change score semantics without any caveat trail.
func Load(store *storage.RunStore, sc scorer.Scorer, runID string) ([]Outcome, storage.Manifest, error) {
	if store == nil {
		return nil, storage.Manifest{}, fmt.Errorf("%w: no artifact store configured", storage.ErrMissingArtifact)
	}

	manifest, err := store.GetManifest(runID)
	if err != nil {
		return nil, storage.Manifest{}, err
	}
	if len(manifest.UsableFolds) == 0 {
		return nil, manifest, fmt.Errorf("%w: run %s trained no usable replicates", storage.ErrMissingArtifact, runID)
	}
	if manifest.Scorer != sc.Name() {
		return nil, manifest, fmt.Errorf("run %s was trained with scorer %q, configured scorer is %q", runID, manifest.Scorer, sc.Name())
	}

	outcomes := make([]Outcome, 0, len(manifest.UsableFolds))
	for _, fold := range manifest.UsableFolds {
		data, err := store.GetCheckpoint(runID, fold)
		if err != nil {
			return nil, manifest, err
		}
		pred, err := sc.Load(data)
		if err != nil {
			return nil, manifest, fmt.Errorf("fold %d: %w", fold, err)
		}
		outcomes = append(outcomes, Outcome{Fold: fold, Predictor: pred})
	}

	log.Info().Str("run", runID).Int("replicates", len(outcomes)).Msg("ensemble restored from checkpoints")
	return outcomes, manifest, nil
}
