package storage

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestManifestRoundTrip(t *testing.T) {
	s := openStore(t)

	m := Manifest{
		RunID:        "run_1",
		Scorer:       "logistic",
		Seed:         42,
		EnsembleSize: 10,
		UsableFolds:  []int{0, 1, 3, 7},
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.PutManifest(m))

	got, err := s.GetManifest("run_1")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestGetManifestMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.GetManifest("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingArtifact))
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.PutCheckpoint("run_1", 3, []byte("weights")))

	got, err := s.GetCheckpoint("run_1", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("weights"), got)

	// same fold, other run
	_, err = s.GetCheckpoint("run_2", 3)
	assert.True(t, errors.Is(err, ErrMissingArtifact))

	// other fold, same run
	_, err = s.GetCheckpoint("run_1", 4)
	assert.True(t, errors.Is(err, ErrMissingArtifact))
}

func TestScoresRoundTripWithNaN(t *testing.T) {
	s := openStore(t)

	rows := []ScoreRow{
		{CompoundID: "AAA", Scores: []float64{0.9, math.NaN(), 0.7}},
		{CompoundID: "BBB", Scores: []float64{math.NaN(), math.NaN(), math.NaN()}},
	}
	require.NoError(t, s.PutScores("run_1", rows))

	got, err := s.GetScores("run_1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "AAA", got[0].CompoundID)
	assert.Equal(t, 0.9, got[0].Scores[0])
	assert.True(t, math.IsNaN(got[0].Scores[1]))
	assert.Equal(t, 0.7, got[0].Scores[2])

	for _, v := range got[1].Scores {
		assert.True(t, math.IsNaN(v))
	}
}

func TestScoresPrefixIsolation(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.PutScores("run", []ScoreRow{{CompoundID: "AAA", Scores: []float64{1}}}))
	require.NoError(t, s.PutScores("run_longer", []ScoreRow{{CompoundID: "BBB", Scores: []float64{2}}}))

	got, err := s.GetScores("run")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AAA", got[0].CompoundID)
}

func TestGetScoresEmpty(t *testing.T) {
	s := openStore(t)

	got, err := s.GetScores("nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}
