package ensemble

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herbrank/internal/metrics"
	"herbrank/internal/refdata"
	"herbrank/internal/sampling"
	"herbrank/internal/scorer"
	"herbrank/internal/storage"
)

// fakeScorer trains instantly and fails on the folds it is told to.
type fakeScorer struct {
	failFolds map[int]bool
}

type fakePredictor struct {
	fold int
}

func (p fakePredictor) ScoreBatch(ctx context.Context, compounds []refdata.Compound) ([]float64, error) {
	scores := make([]float64, len(compounds))
	for i := range scores {
		scores[i] = 0.5
	}
	return scores, nil
}

func (f *fakeScorer) Name() string { return "fake" }

func (f *fakeScorer) Fit(ctx context.Context, ds sampling.Dataset) (scorer.Predictor, error) {
	if f.failFolds[ds.Fold] {
		return nil, errors.New("synthetic training failure")
	}
	return fakePredictor{fold: ds.Fold}, nil
}

func (f *fakeScorer) Save(p scorer.Predictor) ([]byte, error) {
	fp, ok := p.(fakePredictor)
	if !ok {
		return nil, errors.New("wrong predictor type")
	}
	return []byte(strconv.Itoa(fp.fold)), nil
}

func (f *fakeScorer) Load(checkpoint []byte) (scorer.Predictor, error) {
	fold, err := strconv.Atoi(string(checkpoint))
	if err != nil {
		return nil, err
	}
	return fakePredictor{fold: fold}, nil
}

func makeDatasets(n int) []sampling.Dataset {
	out := make([]sampling.Dataset, n)
	for i := range out {
		out[i] = sampling.Dataset{Fold: i, Seed: int64(42 + i), Samples: []sampling.Sample{
			{CompoundID: fmt.Sprintf("P%d", i), SMILES: "CCO", Label: 1, Fold: i},
			{CompoundID: fmt.Sprintf("U%d", i), SMILES: "CCN", Label: 0, Fold: i},
		}}
	}
	return out
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

func TestTrainAllReplicates(t *testing.T) {
	tr := New(&fakeScorer{}, 4, nil, testMetrics())

	outcomes, err := tr.Train(context.Background(), storage.Manifest{RunID: "run_1", Seed: 42}, makeDatasets(5))
	require.NoError(t, err)
	require.Len(t, outcomes, 5)
	assert.Len(t, Usable(outcomes), 5)

	for i, o := range outcomes {
		assert.Equal(t, i, o.Fold)
		assert.NoError(t, o.Err)
		assert.NotNil(t, o.Predictor)
	}
}

func TestTrainDegradesOnPartialFailure(t *testing.T) {
	sc := &fakeScorer{failFolds: map[int]bool{1: true, 3: true}}
	tr := New(sc, 2, nil, testMetrics())

	outcomes, err := tr.Train(context.Background(), storage.Manifest{RunID: "run_1", Seed: 42}, makeDatasets(5))
	require.NoError(t, err)

	usable := Usable(outcomes)
	require.Len(t, usable, 3)
	for _, o := range usable {
		assert.NotContains(t, []int{1, 3}, o.Fold)
	}
	assert.Error(t, outcomes[1].Err)
	assert.Error(t, outcomes[3].Err)
}

func TestTrainFailsWithZeroUsable(t *testing.T) {
	sc := &fakeScorer{failFolds: map[int]bool{0: true, 1: true}}
	tr := New(sc, 2, nil, testMetrics())

	_, err := tr.Train(context.Background(), storage.Manifest{RunID: "run_1", Seed: 42}, makeDatasets(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrainingFailed))
}

func TestTrainPersistsArtifacts(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	sc := &fakeScorer{failFolds: map[int]bool{2: true}}
	tr := New(sc, 2, store, testMetrics())

	_, err = tr.Train(context.Background(), storage.Manifest{
		RunID:     "run_1",
		Seed:      42,
		Targets:   []string{"1017", "5290"},
		Positives: 12,
	}, makeDatasets(4))
	require.NoError(t, err)

	m, err := store.GetManifest("run_1")
	require.NoError(t, err)
	assert.Equal(t, "fake", m.Scorer)
	assert.Equal(t, int64(42), m.Seed)
	assert.Equal(t, []string{"1017", "5290"}, m.Targets)
	assert.Equal(t, 12, m.Positives)
	assert.Equal(t, 4, m.EnsembleSize)
	assert.Equal(t, []int{0, 1, 3}, m.UsableFolds)

	for _, fold := range m.UsableFolds {
		data, err := store.GetCheckpoint("run_1", fold)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(fold), string(data))
	}
	_, err = store.GetCheckpoint("run_1", 2)
	assert.True(t, errors.Is(err, storage.ErrMissingArtifact))
}

func TestLoadRestoresEnsemble(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	sc := &fakeScorer{failFolds: map[int]bool{1: true}}
	tr := New(sc, 2, store, testMetrics())
	_, err = tr.Train(context.Background(), storage.Manifest{RunID: "run_1", Seed: 42}, makeDatasets(3))
	require.NoError(t, err)

	outcomes, manifest, err := Load(store, sc, "run_1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, manifest.UsableFolds)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 0, outcomes[0].Fold)
	assert.Equal(t, 2, outcomes[1].Fold)
}

func TestLoadMissingRun(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, _, err = Load(store, &fakeScorer{}, "nope")
	assert.True(t, errors.Is(err, storage.ErrMissingArtifact))

	_, _, err = Load(nil, &fakeScorer{}, "run")
	assert.True(t, errors.Is(err, storage.ErrMissingArtifact))
}

func TestLoadScorerMismatch(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutManifest(storage.Manifest{
		RunID:       "run_1",
		Scorer:      "other",
		UsableFolds: []int{0},
	}))

	_, _, err = Load(store, &fakeScorer{}, "run_1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrMissingArtifact))
}
