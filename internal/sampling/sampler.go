// Package sampling builds the per-replicate PU training sets. Every fold
// carries the full positive set; only the background side is resampled,
// which is what makes the bagging ensemble diverse despite the fixed,
// scarce positive evidence.
package sampling

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"

	"herbrank/internal/refdata"
)

// Sample is one labeled training row. Label is 1 for a known positive,
// 0 for a sampled background compound.
type Sample struct {
	CompoundID string
	SMILES     string
	Label      int
	Fold       int
}

// Dataset is the training set for one ensemble replicate. Seed is the
// fold-local RNG seed the draw was made with, so a scorer can reuse it.
type Dataset struct {
	Fold    int
	Seed    int64
	Samples []Sample
}

// Positives returns the number of label-1 rows.
func (d Dataset) Positives() int {
	n := 0
	for _, s := range d.Samples {
		if s.Label == 1 {
			n++
		}
	}
	return n
}

// Draw produces one dataset per fold. For fold i the background subset is
// drawn without replacement from pool using an RNG seeded with
// globalSeed+i, so the whole ensemble is reproducible from the global seed
// alone. The background draw size is ratio times the positive count
// (rounded); a pool smaller than that yields the whole pool and a logged
// warning about the degraded class balance.
func Draw(positives, pool []refdata.Compound, folds int, ratio float64, globalSeed int64) ([]Dataset, error) {
	if len(positives) == 0 {
		return nil, fmt.Errorf("no positive compounds to sample from")
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("empty candidate pool")
	}
	if folds < 1 {
		return nil, fmt.Errorf("fold count must be at least 1, got %d", folds)
	}

	want := int(math.Round(ratio * float64(len(positives))))
	if want < 1 {
		want = 1
	}
	if want > len(pool) {
		log.Warn().
			Int("requested", want).
			Int("available", len(pool)).
			Msg("candidate pool smaller than requested background draw, using full pool")
		want = len(pool)
	}

	datasets := make([]Dataset, folds)
	for fold := 0; fold < folds; fold++ {
		seed := globalSeed + int64(fold)
		rng := rand.New(rand.NewSource(seed))

		samples := make([]Sample, 0, len(positives)+want)
		for _, c := range positives {
			samples = append(samples, Sample{CompoundID: c.ID, SMILES: c.SMILES, Label: 1, Fold: fold})
		}
		for _, idx := range rng.Perm(len(pool))[:want] {
			c := pool[idx]
			samples = append(samples, Sample{CompoundID: c.ID, SMILES: c.SMILES, Label: 0, Fold: fold})
		}

		datasets[fold] = Dataset{Fold: fold, Seed: seed, Samples: samples}
	}

	log.Info().
		Int("folds", folds).
		Int("positives", len(positives)).
		Int("background_per_fold", want).
		Msg("training sets sampled")

	return datasets, nil
}
