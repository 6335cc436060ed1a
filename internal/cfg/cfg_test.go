package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REF_DIR", "/data/ref")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/ref", s.RefDir)
	assert.Equal(t, "D13_InChIKey_EntrezID.tsv", s.TargetCompoundsFile)
	assert.Equal(t, "D9_CHP_InChIKey.tsv", s.HerbCompoundsFile)
	assert.Equal(t, "D12_InChIKey.tsv", s.LibraryFile)
	assert.Equal(t, "logistic", s.ScorerName)
	assert.Equal(t, 10, s.EnsembleSize)
	assert.Equal(t, 20, s.MaxEpochs)
	assert.Equal(t, 1.0, s.NegativeRatio)
	assert.Equal(t, int64(42), s.Seed)
	assert.Equal(t, 10, s.MinPositives)
	assert.Equal(t, 10.0, s.BayesAlpha)
	assert.Equal(t, 0.8, s.HighQualityThreshold)
	assert.Equal(t, 0.9, s.UltraHighThreshold)
	assert.False(t, s.PubChemLookup)
	assert.Equal(t, 10*time.Second, s.LookupTimeout)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REF_DIR", "/data/ref")
	t.Setenv("ENSEMBLE_SIZE", "25")
	t.Setenv("GLOBAL_SEED", "7")
	t.Setenv("NEGATIVE_RATIO", "2.5")
	t.Setenv("SCORER", "chemprop")
	t.Setenv("RUN_TIMEOUT", "30m")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, s.EnsembleSize)
	assert.Equal(t, int64(7), s.Seed)
	assert.Equal(t, 2.5, s.NegativeRatio)
	assert.Equal(t, "chemprop", s.ScorerName)
	assert.Equal(t, 30*time.Minute, s.RunTimeout)
}

func TestLoadRequiresRefDir(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REF_DIR", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
data:
  refDir: /data/ref
ensemble:
  size: 5
  seed: 99
ranking:
  minPositives: 3
lookup:
  pubchem: true
  timeout: 5s
system:
  metricsPort: 9090
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("REF_DIR", "")
	t.Setenv("ENSEMBLE_SIZE", "")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/ref", s.RefDir)
	assert.Equal(t, 5, s.EnsembleSize)
	assert.Equal(t, int64(99), s.Seed)
	assert.Equal(t, 3, s.MinPositives)
	assert.True(t, s.PubChemLookup)
	assert.Equal(t, 5*time.Second, s.LookupTimeout)
	assert.Equal(t, 9090, s.MetricsPort)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
data:
  refDir: /data/ref
ensemble:
  size: 5
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("ENSEMBLE_SIZE", "50")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, s.EnsembleSize)
}

func TestValidateSettings(t *testing.T) {
	valid := func() Settings {
		return Settings{
			RefDir:              "/data/ref",
			TargetCompoundsFile: "a.tsv",
			HerbCompoundsFile:   "b.tsv",
			HerbNamesFile:       "c.tsv",
			LibraryFile:         "d.tsv",
			ScorerName:          "logistic",
			EnsembleSize:        10,
			MaxEpochs:           20,
			NegativeRatio:       1.0,
			TrainWorkers:        4,
			PredictWorkers:      4,
			MinPositives:        10,
			BayesAlpha:          10,
			HighQualityThreshold: 0.8,
			UltraHighThreshold:   0.9,
			LookupTimeout:        10 * time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"valid", func(s *Settings) {}, true},
		{"zero ensemble size", func(s *Settings) { s.EnsembleSize = 0 }, false},
		{"oversized ensemble", func(s *Settings) { s.EnsembleSize = 101 }, false},
		{"negative ratio zero", func(s *Settings) { s.NegativeRatio = 0 }, false},
		{"too many workers", func(s *Settings) { s.TrainWorkers = 65 }, false},
		{"thresholds inverted", func(s *Settings) { s.UltraHighThreshold = 0.7 }, false},
		{"threshold at one", func(s *Settings) { s.HighQualityThreshold = 1.0 }, false},
		{"privileged metrics port", func(s *Settings) { s.MetricsPort = 80 }, false},
		{"metrics port disabled", func(s *Settings) { s.MetricsPort = 0 }, true},
		{"lookup timeout too short", func(s *Settings) { s.LookupTimeout = 100 * time.Millisecond }, false},
		{"empty scorer", func(s *Settings) { s.ScorerName = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateSettings(&s)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
