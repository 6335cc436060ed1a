package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the fully resolved runtime configuration for a ranking run.
type Settings struct {
	// Reference data
	RefDir              string
	TargetCompoundsFile string
	HerbCompoundsFile   string
	HerbNamesFile       string
	LibraryFile         string
	SmilesCacheFile     string

	// Ensemble
	ScorerName     string
	EnsembleSize   int
	MaxEpochs      int
	NegativeRatio  float64
	TrainWorkers   int
	PredictWorkers int
	Seed           int64

	// Ranking
	MinPositives         int
	BayesAlpha           float64
	HighQualityThreshold float64
	UltraHighThreshold   float64

	// Remote lookup
	PubChemLookup bool
	PubChemURL    string
	LookupTimeout time.Duration

	// Chemprop scorer
	PythonPath     string
	ChempropScript string

	// System
	OutputsDir  string
	ModelsDir   string
	DataPath    string
	MetricsPort int
	RunTimeout  time.Duration
}

type ConfigFile struct {
	Data struct {
		RefDir          string `yaml:"refDir"`
		TargetCompounds string `yaml:"targetCompounds"`
		HerbCompounds   string `yaml:"herbCompounds"`
		HerbNames       string `yaml:"herbNames"`
		Library         string `yaml:"library"`
		SmilesCache     string `yaml:"smilesCache"`
	} `yaml:"data"`

	Ensemble struct {
		Scorer         string  `yaml:"scorer"`
		Size           int     `yaml:"size"`
		MaxEpochs      int     `yaml:"maxEpochs"`
		NegativeRatio  float64 `yaml:"negativeRatio"`
		TrainWorkers   int     `yaml:"trainWorkers"`
		PredictWorkers int     `yaml:"predictWorkers"`
		Seed           int64   `yaml:"seed"`
	} `yaml:"ensemble"`

	Ranking struct {
		MinPositives         int     `yaml:"minPositives"`
		BayesAlpha           float64 `yaml:"bayesAlpha"`
		HighQualityThreshold float64 `yaml:"highQualityThreshold"`
		UltraHighThreshold   float64 `yaml:"ultraHighThreshold"`
	} `yaml:"ranking"`

	Lookup struct {
		PubChem bool   `yaml:"pubchem"`
		BaseURL string `yaml:"baseURL"`
		Timeout string `yaml:"timeout"`
	} `yaml:"lookup"`

	Chemprop struct {
		Python string `yaml:"python"`
		Script string `yaml:"script"`
	} `yaml:"chemprop"`

	System struct {
		OutputsDir  string `yaml:"outputsDir"`
		ModelsDir   string `yaml:"modelsDir"`
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
		RunTimeout  string `yaml:"runTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	lookupTimeout, err := time.ParseDuration(config.Lookup.Timeout)
	if err != nil {
		lookupTimeout = 10 * time.Second
	}

	runTimeout := time.Duration(0) // no run-level deadline by default
	if config.System.RunTimeout != "" {
		if d, err := time.ParseDuration(config.System.RunTimeout); err == nil {
			runTimeout = d
		}
	}

	settings := Settings{
		RefDir:              getEnvOrDefault("REF_DIR", config.Data.RefDir),
		TargetCompoundsFile: getEnvOrDefault("TARGET_COMPOUNDS_FILE", defaultStr(config.Data.TargetCompounds, "D13_InChIKey_EntrezID.tsv")),
		HerbCompoundsFile:   getEnvOrDefault("HERB_COMPOUNDS_FILE", defaultStr(config.Data.HerbCompounds, "D9_CHP_InChIKey.tsv")),
		HerbNamesFile:       getEnvOrDefault("HERB_NAMES_FILE", defaultStr(config.Data.HerbNames, "D6_Chinese_herbal_pieces.tsv")),
		LibraryFile:         getEnvOrDefault("LIBRARY_FILE", defaultStr(config.Data.Library, "D12_InChIKey.tsv")),
		SmilesCacheFile:     getEnvOrDefault("SMILES_CACHE_FILE", config.Data.SmilesCache),

		ScorerName:     getEnvOrDefault("SCORER", defaultStr(config.Ensemble.Scorer, "logistic")),
		EnsembleSize:   getIntFromEnvOrConfig("ENSEMBLE_SIZE", config.Ensemble.Size, 10),
		MaxEpochs:      getIntFromEnvOrConfig("MAX_EPOCHS", config.Ensemble.MaxEpochs, 20),
		NegativeRatio:  getFloatFromEnvOrConfig("NEGATIVE_RATIO", config.Ensemble.NegativeRatio, 1.0),
		TrainWorkers:   getIntFromEnvOrConfig("TRAIN_WORKERS", config.Ensemble.TrainWorkers, 4),
		PredictWorkers: getIntFromEnvOrConfig("PREDICT_WORKERS", config.Ensemble.PredictWorkers, 4),
		Seed:           getInt64FromEnvOrConfig("GLOBAL_SEED", config.Ensemble.Seed, 42),

		MinPositives:         getIntFromEnvOrConfig("MIN_POSITIVES", config.Ranking.MinPositives, 10),
		BayesAlpha:           getFloatFromEnvOrConfig("BAYES_ALPHA", config.Ranking.BayesAlpha, 10),
		HighQualityThreshold: getFloatFromEnvOrConfig("HIGH_QUALITY_THRESHOLD", config.Ranking.HighQualityThreshold, 0.8),
		UltraHighThreshold:   getFloatFromEnvOrConfig("ULTRA_HIGH_THRESHOLD", config.Ranking.UltraHighThreshold, 0.9),

		PubChemLookup: getBoolFromEnvOrConfig("PUBCHEM_LOOKUP", config.Lookup.PubChem),
		PubChemURL:    getEnvOrDefault("PUBCHEM_URL", defaultStr(config.Lookup.BaseURL, "https://pubchem.ncbi.nlm.nih.gov/rest/pug")),
		LookupTimeout: lookupTimeout,

		PythonPath:     getEnvOrDefault("PYTHON_PATH", defaultStr(config.Chemprop.Python, "python3")),
		ChempropScript: getEnvOrDefault("CHEMPROP_SCRIPT", config.Chemprop.Script),

		OutputsDir:  getEnvOrDefault("OUTPUTS_DIR", defaultStr(config.System.OutputsDir, "outputs")),
		ModelsDir:   getEnvOrDefault("MODELS_DIR", defaultStr(config.System.ModelsDir, "models")),
		DataPath:    getEnvOrDefault("DATA_PATH", config.System.DataPath),
		MetricsPort: getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 0),
		RunTimeout:  runTimeout,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	refDir, err := getEnvRequired("REF_DIR")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		RefDir:              refDir,
		TargetCompoundsFile: getEnvOrDefault("TARGET_COMPOUNDS_FILE", "D13_InChIKey_EntrezID.tsv"),
		HerbCompoundsFile:   getEnvOrDefault("HERB_COMPOUNDS_FILE", "D9_CHP_InChIKey.tsv"),
		HerbNamesFile:       getEnvOrDefault("HERB_NAMES_FILE", "D6_Chinese_herbal_pieces.tsv"),
		LibraryFile:         getEnvOrDefault("LIBRARY_FILE", "D12_InChIKey.tsv"),
		SmilesCacheFile:     os.Getenv("SMILES_CACHE_FILE"), // optional

		ScorerName:     getEnvOrDefault("SCORER", "logistic"),
		EnsembleSize:   getIntOrDefault("ENSEMBLE_SIZE", 10),
		MaxEpochs:      getIntOrDefault("MAX_EPOCHS", 20),
		NegativeRatio:  getFloatOrDefault("NEGATIVE_RATIO", 1.0),
		TrainWorkers:   getIntOrDefault("TRAIN_WORKERS", 4),
		PredictWorkers: getIntOrDefault("PREDICT_WORKERS", 4),
		Seed:           getInt64OrDefault("GLOBAL_SEED", 42),

		MinPositives:         getIntOrDefault("MIN_POSITIVES", 10),
		BayesAlpha:           getFloatOrDefault("BAYES_ALPHA", 10),
		HighQualityThreshold: getFloatOrDefault("HIGH_QUALITY_THRESHOLD", 0.8),
		UltraHighThreshold:   getFloatOrDefault("ULTRA_HIGH_THRESHOLD", 0.9),

		PubChemLookup: getBoolOrDefault("PUBCHEM_LOOKUP", false),
		PubChemURL:    getEnvOrDefault("PUBCHEM_URL", "https://pubchem.ncbi.nlm.nih.gov/rest/pug"),
		LookupTimeout: getDurationOrDefault("LOOKUP_TIMEOUT", 10*time.Second),

		PythonPath:     getEnvOrDefault("PYTHON_PATH", "python3"),
		ChempropScript: os.Getenv("CHEMPROP_SCRIPT"), // optional

		OutputsDir:  getEnvOrDefault("OUTPUTS_DIR", "outputs"),
		ModelsDir:   getEnvOrDefault("MODELS_DIR", "models"),
		DataPath:    os.Getenv("DATA_PATH"), // optional
		MetricsPort: getIntOrDefault("METRICS_PORT", 0),
		RunTimeout:  getDurationOrDefault("RUN_TIMEOUT", 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.RefDir == "" {
		return fmt.Errorf("reference data directory is required")
	}
	if settings.TargetCompoundsFile == "" || settings.HerbCompoundsFile == "" ||
		settings.HerbNamesFile == "" || settings.LibraryFile == "" {
		return fmt.Errorf("all reference table file names must be set")
	}

	if settings.ScorerName == "" {
		return fmt.Errorf("scorer name cannot be empty")
	}

	if settings.EnsembleSize < 1 || settings.EnsembleSize > 100 {
		return fmt.Errorf("ensemble size must be between 1 and 100, got %d", settings.EnsembleSize)
	}
	if settings.MaxEpochs < 1 || settings.MaxEpochs > 1000 {
		return fmt.Errorf("max epochs must be between 1 and 1000, got %d", settings.MaxEpochs)
	}
	if settings.NegativeRatio <= 0 || settings.NegativeRatio > 100 {
		return fmt.Errorf("negative ratio must be between 0 and 100, got %f", settings.NegativeRatio)
	}
	if settings.TrainWorkers < 1 || settings.TrainWorkers > 64 {
		return fmt.Errorf("train workers must be between 1 and 64, got %d", settings.TrainWorkers)
	}
	if settings.PredictWorkers < 1 || settings.PredictWorkers > 64 {
		return fmt.Errorf("predict workers must be between 1 and 64, got %d", settings.PredictWorkers)
	}

	if settings.MinPositives < 1 {
		return fmt.Errorf("minimum positive count must be at least 1, got %d", settings.MinPositives)
	}
	if settings.BayesAlpha < 0 {
		return fmt.Errorf("bayes alpha must be non-negative, got %f", settings.BayesAlpha)
	}
	if settings.HighQualityThreshold <= 0 || settings.HighQualityThreshold >= 1 {
		return fmt.Errorf("high quality threshold must be between 0 and 1, got %f", settings.HighQualityThreshold)
	}
	if settings.UltraHighThreshold <= settings.HighQualityThreshold || settings.UltraHighThreshold >= 1 {
		return fmt.Errorf("ultra high threshold must be between the high quality threshold and 1, got %f", settings.UltraHighThreshold)
	}

	if settings.PubChemLookup && settings.PubChemURL == "" {
		return fmt.Errorf("pubchem base URL cannot be empty when remote lookup is enabled")
	}
	if settings.LookupTimeout < time.Second || settings.LookupTimeout > time.Minute {
		return fmt.Errorf("lookup timeout must be between 1s and 1m, got %v", settings.LookupTimeout)
	}

	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	return nil
}
