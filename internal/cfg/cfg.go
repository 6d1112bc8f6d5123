// Package cfg loads service settings from a YAML file named by CONFIG_FILE, or
// from environment variables when no file is given. Environment variables
// override values from the file.
package cfg

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"fast-interactions/internal/common"
	"fast-interactions/internal/objective"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	MaxInteractionBins int
	MinSamplesLeaf     int
	Objective          string
	TopK               int
	Workers            int
	DataPath           string
	ReportPath         string
	ServerPort         int
	MetricsPort        int
	LogLevel           string
	DatasetTimeout     time.Duration
}

type ConfigFile struct {
	Ranking struct {
		MaxInteractionBins int    `yaml:"maxInteractionBins"`
		MinSamplesLeaf     int    `yaml:"minSamplesLeaf"`
		Objective          string `yaml:"objective"`
		TopK               int    `yaml:"topK"`
		Workers            int    `yaml:"workers"`
	} `yaml:"ranking"`

	Server struct {
		Port        int `yaml:"port"`
		MetricsPort int `yaml:"metricsPort"`
	} `yaml:"server"`

	System struct {
		DataPath       string `yaml:"dataPath"`
		ReportPath     string `yaml:"reportPath"`
		LogLevel       string `yaml:"logLevel"`
		DatasetTimeout string `yaml:"datasetTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
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

	timeout := common.DefaultDatasetTimeout
	if config.System.DatasetTimeout != "" {
		timeout, err = time.ParseDuration(config.System.DatasetTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid dataset timeout %q: %w", config.System.DatasetTimeout, err)
		}
	}

	settings := Settings{
		MaxInteractionBins: getIntFromEnvOrConfig(common.EnvMaxInteractionBins, config.Ranking.MaxInteractionBins, common.DefaultMaxInteractionBins),
		MinSamplesLeaf:     getIntFromEnvOrConfig(common.EnvMinSamplesLeaf, config.Ranking.MinSamplesLeaf, common.DefaultMinSamplesLeaf),
		Objective:          getEnvOrDefault(common.EnvObjective, config.Ranking.Objective),
		TopK:               getIntFromEnvOrConfig(common.EnvTopK, config.Ranking.TopK, common.DefaultTopK),
		Workers:            getIntFromEnvOrConfig(common.EnvWorkers, config.Ranking.Workers, runtime.GOMAXPROCS(0)),
		DataPath:           getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ReportPath:         getEnvOrDefault(common.EnvReportPath, orDefault(config.System.ReportPath, common.DefaultReportPath)),
		ServerPort:         getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		MetricsPort:        getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		DatasetTimeout:     getDurationOrDefault(common.EnvDatasetTimeout, timeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		MaxInteractionBins: getIntOrDefault(common.EnvMaxInteractionBins, common.DefaultMaxInteractionBins),
		MinSamplesLeaf:     getIntOrDefault(common.EnvMinSamplesLeaf, common.DefaultMinSamplesLeaf),
		Objective:          os.Getenv(common.EnvObjective), // optional, inferred when empty
		TopK:               getIntOrDefault(common.EnvTopK, common.DefaultTopK),
		Workers:            getIntOrDefault(common.EnvWorkers, runtime.GOMAXPROCS(0)),
		DataPath:           os.Getenv(common.EnvDataPath), // optional, runs are not stored when empty
		ReportPath:         getEnvOrDefault(common.EnvReportPath, common.DefaultReportPath),
		ServerPort:         getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		MetricsPort:        getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		DatasetTimeout:     getDurationOrDefault(common.EnvDatasetTimeout, common.DefaultDatasetTimeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
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
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

// validateSettings checks every setting against its allowed range
func validateSettings(settings *Settings) error {
	if settings.MaxInteractionBins < 2 || settings.MaxInteractionBins > common.MaxInteractionBinsLimit {
		return fmt.Errorf("max interaction bins must be between 2 and %d, got %d", common.MaxInteractionBinsLimit, settings.MaxInteractionBins)
	}
	if settings.MinSamplesLeaf < 1 {
		return fmt.Errorf("min samples leaf must be at least 1, got %d", settings.MinSamplesLeaf)
	}
	if settings.TopK < 0 {
		return fmt.Errorf("top k must not be negative, got %d", settings.TopK)
	}
	if settings.Workers < 1 || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", common.MaxWorkers, settings.Workers)
	}

	if strings.TrimSpace(settings.Objective) != "" {
		if _, err := objective.DefaultTable().Parse(settings.Objective); err != nil {
			return fmt.Errorf("invalid objective: %w", err)
		}
	}

	if settings.ServerPort < 1024 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1024 and 65535, got %d", settings.ServerPort)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ServerPort == settings.MetricsPort {
		return fmt.Errorf("server and metrics ports must differ, both are %d", settings.ServerPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	if settings.DatasetTimeout < common.MinDatasetTimeout || settings.DatasetTimeout > common.MaxDatasetTimeout {
		return fmt.Errorf("dataset timeout must be between %v and %v, got %v", common.MinDatasetTimeout, common.MaxDatasetTimeout, settings.DatasetTimeout)
	}
	if settings.ReportPath == "" {
		return fmt.Errorf("report path cannot be empty")
	}

	return nil
}
