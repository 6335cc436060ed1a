package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herbrank/internal/cfg"
	"herbrank/internal/metrics"
	"herbrank/internal/refdata"
	"herbrank/internal/storage"
)

// writeFixture builds a small but fully workable reference directory:
// ten long-chain positives tied to one gene, twenty small background
// molecules, and two herbs splitting the library between them.
func writeFixture(t *testing.T) cfg.Settings {
	t.Helper()
	dir := t.TempDir()

	var targets, library, herbCompounds strings.Builder
	targets.WriteString("EntrezID\tInChIKey\n")
	library.WriteString("InChIKey\tSMILES\n")
	herbCompounds.WriteString("CHP_ID\tInChIKey\n")

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("CHAIN%02d", i)
		smiles := strings.Repeat("C", 8+i)
		fmt.Fprintf(&targets, "1017\t%s\n", id)
		fmt.Fprintf(&library, "%s\t%s\n", id, smiles)
		fmt.Fprintf(&herbCompounds, "H1\t%s\n", id)
	}
	small := []string{"O", "N", "OC", "CN", "NO", "OCO", "NCN", "ONO", "CNO", "OCN"}
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("BG%02d", i)
		fmt.Fprintf(&library, "%s\t%s\n", id, small[i%len(small)])
		fmt.Fprintf(&herbCompounds, "H2\t%s\n", id)
	}

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("targets.tsv", targets.String())
	write("library.tsv", library.String())
	write("herb_compounds.tsv", herbCompounds.String())
	write("herb_names.tsv", "CHP_ID\tChinese_herbal_pieces\nH1\tGan Cao\nH2\tHuang Qi\n")

	return cfg.Settings{
		RefDir:              dir,
		TargetCompoundsFile: "targets.tsv",
		HerbCompoundsFile:   "herb_compounds.tsv",
		HerbNamesFile:       "herb_names.tsv",
		LibraryFile:         "library.tsv",

		ScorerName:     "logistic",
		EnsembleSize:   3,
		MaxEpochs:      30,
		NegativeRatio:  1.0,
		TrainWorkers:   2,
		PredictWorkers: 2,
		Seed:           42,

		MinPositives:         2,
		BayesAlpha:           10,
		HighQualityThreshold: 0.8,
		UltraHighThreshold:   0.9,

		OutputsDir: filepath.Join(dir, "outputs"),
	}
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

func TestExecuteFullRun(t *testing.T) {
	c := writeFixture(t)

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p, err := New(c, store, testMetrics(), "testrun")
	require.NoError(t, err)
	defer p.Close()

	results, err := p.Execute(context.Background(), []string{"1017"})
	require.NoError(t, err)

	assert.Equal(t, "testrun", results.RunID)
	assert.Equal(t, "logistic", results.Scorer)
	assert.Equal(t, 10, results.Positives)
	assert.Len(t, results.UsableFolds, 3)
	require.Len(t, results.Herbs, 2)
	// the herb of the positive chains outranks the background herb
	assert.Equal(t, "H1", results.Herbs[0].HerbID)
	assert.Equal(t, 1, results.Herbs[0].Rank)

	for _, name := range []string{
		"compound_scores.csv",
		"herb_ranking_composite.csv",
		"ranking_summary.txt",
		"ranking_results.json",
		"run.log",
	} {
		_, err := os.Stat(filepath.Join(p.OutputDir, name))
		assert.NoError(t, err, name)
	}

	// artifacts landed in the store
	m, err := store.GetManifest("testrun")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, m.UsableFolds)
	rows, err := store.GetScores("testrun")
	require.NoError(t, err)
	assert.Len(t, rows, 30)
}

func TestPredictOnlyReproducesRanking(t *testing.T) {
	c := writeFixture(t)

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p, err := New(c, store, testMetrics(), "testrun")
	require.NoError(t, err)
	first, err := p.Execute(context.Background(), []string{"1017"})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	p2, err := New(c, store, testMetrics(), "testrun")
	require.NoError(t, err)
	defer p2.Close()
	second, err := p2.PredictOnly(context.Background())
	require.NoError(t, err)

	require.Len(t, second.Herbs, len(first.Herbs))
	for i := range first.Herbs {
		assert.Equal(t, first.Herbs[i].HerbID, second.Herbs[i].HerbID)
		assert.Equal(t, first.Herbs[i].Composite, second.Herbs[i].Composite)
	}
	assert.Equal(t, first.Seed, second.Seed)
	// resolution context survives the round trip through the manifest
	assert.Equal(t, first.Targets, second.Targets)
	assert.Equal(t, first.Positives, second.Positives)
}

func TestPredictOnlyMissingRun(t *testing.T) {
	c := writeFixture(t)

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p, err := New(c, store, testMetrics(), "never_trained")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.PredictOnly(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrMissingArtifact))
}

func TestExecuteContinuesOnInsufficientEvidence(t *testing.T) {
	c := writeFixture(t)
	c.MinPositives = 50 // only 10 positives exist

	p, err := New(c, nil, testMetrics(), "testrun")
	require.NoError(t, err)
	defer p.Close()

	results, err := p.Execute(context.Background(), []string{"1017"})
	require.NoError(t, err)

	found := false
	for _, w := range results.Warnings {
		if strings.Contains(w, "insufficient positive evidence") {
			found = true
		}
	}
	assert.True(t, found, "expected an insufficient-evidence caveat, got %v", results.Warnings)
}

func TestExecuteUnknownTargetIsFatal(t *testing.T) {
	c := writeFixture(t)

	p, err := New(c, nil, testMetrics(), "testrun")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Execute(context.Background(), []string{"999999"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, refdata.ErrInsufficientEvidence))
}

func TestExecuteWithoutStore(t *testing.T) {
	c := writeFixture(t)

	p, err := New(c, nil, testMetrics(), "memonly")
	require.NoError(t, err)
	defer p.Close()

	results, err := p.Execute(context.Background(), []string{"1017"})
	require.NoError(t, err)
	assert.Len(t, results.Herbs, 2)
}
