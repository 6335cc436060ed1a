package scorer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herbrank/internal/refdata"
	"herbrank/internal/sampling"
)

// fakeHelper writes a shell script that ignores its input and prints a
// canned JSON response, standing in for the Python helper.
func fakeHelper(t *testing.T, response string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	script := "#!/bin/sh\ncat > /dev/null\necho '" + response + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestChempropCheckpointRoundTrip(t *testing.T) {
	s := NewChemprop("python3", "train.py", 20)
	model := &chempropModel{scorer: s, CheckpointPath: "/models/fold_0.ckpt"}

	data, err := s.Save(model)
	require.NoError(t, err)

	restored, err := s.Load(data)
	require.NoError(t, err)
	assert.Equal(t, "/models/fold_0.ckpt", restored.(*chempropModel).CheckpointPath)

	_, err = s.Load([]byte(`{"checkpoint_path":""}`))
	assert.Error(t, err)
}

func TestChempropFitViaHelper(t *testing.T) {
	script := fakeHelper(t, `{"checkpoint_path":"/tmp/fold_0.ckpt"}`)
	s := NewChemprop("/bin/sh", script, 20)

	ds := sampling.Dataset{Fold: 0, Seed: 42, Samples: []sampling.Sample{
		{CompoundID: "a", SMILES: "CCO", Label: 1},
		{CompoundID: "b", SMILES: "CCN", Label: 0},
	}}
	pred, err := s.Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fold_0.ckpt", pred.(*chempropModel).CheckpointPath)
}

func TestChempropFitHelperError(t *testing.T) {
	script := fakeHelper(t, `{"checkpoint_path":"","error":"training diverged"}`)
	s := NewChemprop("/bin/sh", script, 20)

	_, err := s.Fit(context.Background(), sampling.Dataset{Samples: []sampling.Sample{
		{CompoundID: "a", SMILES: "CCO", Label: 1},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training diverged")
}

func TestChempropScoreBatchNullMeansNaN(t *testing.T) {
	script := fakeHelper(t, `{"scores":[0.9,null,0.1]}`)
	s := NewChemprop("/bin/sh", script, 20)
	model := &chempropModel{scorer: s, CheckpointPath: "/tmp/fold_0.ckpt"}

	scores, err := model.ScoreBatch(context.Background(), []refdata.Compound{
		{ID: "a", SMILES: "CCO"},
		{ID: "b", SMILES: "??"},
		{ID: "c", SMILES: "CCN"},
	})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, 0.9, scores[0])
	assert.True(t, math.IsNaN(scores[1]))
	assert.Equal(t, 0.1, scores[2])
}

func TestChempropScoreBatchLengthMismatch(t *testing.T) {
	script := fakeHelper(t, `{"scores":[0.9]}`)
	s := NewChemprop("/bin/sh", script, 20)
	model := &chempropModel{scorer: s, CheckpointPath: "/tmp/fold_0.ckpt"}

	_, err := model.ScoreBatch(context.Background(), []refdata.Compound{
		{ID: "a", SMILES: "CCO"},
		{ID: "b", SMILES: "CCN"},
	})
	assert.Error(t, err)
}
