// Package predict applies every usable ensemble replicate to the full
// compound library and assembles the score matrix. Positives are scored
// too: they sanity-check the model and belong in the final rankings.
package predict

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"herbrank/internal/ensemble"
	"herbrank/internal/metrics"
	"herbrank/internal/refdata"
	"herbrank/internal/storage"
)

// chunkSize bounds how many compounds one ScoreBatch call sees, so a
// scorer failure poisons at most one chunk.
const chunkSize = 256

// Matrix is the compound-by-replicate score matrix. Scores[i][j] is
// compound i under the replicate with fold index Folds[j]; NaN marks a
// missing cell. Immutable once built.
type Matrix struct {
	Compounds []refdata.Compound
	Folds     []int
	Scores    [][]float64
}

// Rows converts the matrix into storable per-compound rows.
func (m *Matrix) Rows() []storage.ScoreRow {
	rows := make([]storage.ScoreRow, len(m.Compounds))
	for i, c := range m.Compounds {
		rows[i] = storage.ScoreRow{CompoundID: c.ID, Scores: m.Scores[i]}
	}
	return rows
}

// Run scores the whole library with each usable replicate. Replicates are
// processed sequentially (memory budget: one model resident at a time);
// compounds are chunked across at most workers goroutines within a
// replicate. A failed chunk degrades to NaN cells and the batch continues.
// The returned list holds the IDs of compounds no replicate could score;
// those are excluded from aggregation by the ranker.
func Run(ctx context.Context, outcomes []ensemble.Outcome, library []refdata.Compound, workers int, m *metrics.Metrics) (*Matrix, []string, error) {
	usable := ensemble.Usable(outcomes)
	if len(usable) == 0 {
		return nil, nil, fmt.Errorf("no usable replicates to predict with")
	}
	if len(library) == 0 {
		return nil, nil, fmt.Errorf("empty compound library")
	}
	if workers < 1 {
		workers = 1
	}

	mx := &Matrix{
		Compounds: library,
		Folds:     make([]int, len(usable)),
		Scores:    make([][]float64, len(library)),
	}
	for i := range mx.Scores {
		mx.Scores[i] = make([]float64, len(usable))
	}

	for j, o := range usable {
		mx.Folds[j] = o.Fold

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)

		for start := 0; start < len(library); start += chunkSize {
			start := start
			end := start + chunkSize
			if end > len(library) {
				end = len(library)
			}
			j, pred := j, o.Predictor

			g.Go(func() error {
				scores, err := pred.ScoreBatch(gctx, library[start:end])
				if err != nil {
					// Absorb: the chunk becomes missing cells.
					log.Warn().Err(err).Int("fold", mx.Folds[j]).Int("offset", start).Msg("chunk scoring failed")
					for i := start; i < end; i++ {
						mx.Scores[i][j] = math.NaN()
					}
					if m != nil {
						m.PredictionFailures.Add(float64(end - start))
					}
					return nil
				}
				failed := 0
				for i, s := range scores {
					mx.Scores[start+i][j] = s
					if math.IsNaN(s) {
						failed++
					}
				}
				if m != nil {
					m.CompoundsScored.Add(float64(end - start - failed))
					if failed > 0 {
						m.PredictionFailures.Add(float64(failed))
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("batch prediction canceled: %w", err)
		}

		log.Info().Int("fold", o.Fold).Int("compounds", len(library)).Msg("replicate inference complete")
	}

	var unscorable []string
	for i, row := range mx.Scores {
		if allNaN(row) {
			unscorable = append(unscorable, library[i].ID)
		}
	}
	if m != nil {
		m.UnscorableCompounds.Set(float64(len(unscorable)))
	}
	if len(unscorable) > 0 {
		log.Warn().Int("count", len(unscorable)).Msg("compounds unscorable by every replicate")
	}

	return mx, unscorable, nil
}

// FromRows rebuilds a matrix from persisted score rows, restricted to
// compounds still present in the library so herb membership joins stay
// valid.
func FromRows(rows []storage.ScoreRow, folds []int, library []refdata.Compound) (*Matrix, []string, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no persisted score rows")
	}

	byID := make(map[string][]float64, len(rows))
	for _, row := range rows {
		if len(row.Scores) != len(folds) {
			return nil, nil, fmt.Errorf("score row for %s has %d entries, manifest lists %d folds", row.CompoundID, len(row.Scores), len(folds))
		}
		byID[row.CompoundID] = row.Scores
	}

	mx := &Matrix{Folds: folds}
	var unscorable []string
	for _, c := range library {
		scores, ok := byID[c.ID]
		if !ok {
			continue
		}
		mx.Compounds = append(mx.Compounds, c)
		mx.Scores = append(mx.Scores, scores)
		if allNaN(scores) {
			unscorable = append(unscorable, c.ID)
		}
	}
	if len(mx.Compounds) == 0 {
		return nil, nil, fmt.Errorf("persisted scores share no compounds with the current library")
	}
	return mx, unscorable, nil
}

func allNaN(row []float64) bool {
	for _, v := range row {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
