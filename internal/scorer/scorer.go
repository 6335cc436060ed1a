// Package scorer defines the narrow scoring capability the ensemble is
// built on: fit a binary classifier on a labeled dataset, score arbitrary
// compounds with the fitted predictor, and checkpoint/reload predictors.
// The concrete model family is swappable behind this interface.
package scorer

import (
	"context"
	"fmt"

	"herbrank/internal/cfg"
	"herbrank/internal/refdata"
	"herbrank/internal/sampling"
)

// Predictor is one fitted replicate. ScoreBatch returns one relevance
// score per compound in input order; a compound the model cannot score
// (e.g. an unparsable structure) yields NaN at its position rather than an
// error, so one bad structure never aborts a batch.
type Predictor interface {
	ScoreBatch(ctx context.Context, compounds []refdata.Compound) ([]float64, error)
}

// Scorer fits, persists, and restores predictors.
type Scorer interface {
	Name() string
	Fit(ctx context.Context, ds sampling.Dataset) (Predictor, error)
	Save(p Predictor) ([]byte, error)
	Load(checkpoint []byte) (Predictor, error)
}

// New builds the configured scorer implementation.
func New(c cfg.Settings) (Scorer, error) {
	switch c.ScorerName {
	case "logistic":
		return NewLogistic(c.MaxEpochs), nil
	case "chemprop":
		if c.ChempropScript == "" {
			return nil, fmt.Errorf("chemprop scorer requires a helper script path")
		}
		return NewChemprop(c.PythonPath, c.ChempropScript, c.MaxEpochs), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", c.ScorerName)
	}
}
