// Package config provides unified configuration loading for paramsweep.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/paramsweep/internal/constants"
)

// Config contains all paramsweep configuration settings.
type Config struct {
	// Storage contains settings for the persistent store.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Run contains sweep execution settings.
	Run RunConfig `json:"run" yaml:"run"`

	// Logging contains settings for operational and run-trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// StorageConfig configures the persistent store.
type StorageConfig struct {
	// Path is the SQLite store file. Defaults to ~/.paramsweep/sweeps.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RunConfig configures sweep execution defaults.
type RunConfig struct {
	// MaxWorkers bounds concurrency for parallel explorations.
	// Zero or one means sequential execution.
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// ContinueOnError collects per-assignment failures and keeps sweeping
	// instead of aborting on the first failure.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`

	// PersistEachRun saves the trajectory after every recorded run instead
	// of once at the end of the sweep.
	PersistEachRun bool `json:"persist_each_run" yaml:"persist_each_run"`
}

// LoggingConfig configures paramsweep's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default), or
	// "debug". "debug" additionally enables run tracing to runs.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: defaultStorePath(),
		},
		Run: RunConfig{
			MaxWorkers:      1,
			ContinueOnError: false,
			PersistEachRun:  false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return constants.StoreFileName
	}
	return filepath.Join(homeDir, constants.ConfigDirName, constants.StoreFileName)
}

// Dir returns the directory holding the store file; run traces land there too.
func (c *Config) Dir() string {
	return filepath.Dir(c.Storage.Path)
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.paramsweep/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	// Try to load from default config file
	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, constants.ConfigDirName, constants.ConfigFileName)
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must not be empty")
	}

	if c.Run.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be non-negative, got %d", c.Run.MaxWorkers)
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PARAMSWEEP_STORE_PATH"); v != "" {
		config.Storage.Path = v
	}

	if v := os.Getenv("PARAMSWEEP_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.MaxWorkers = n
		}
	}

	if v := os.Getenv("PARAMSWEEP_CONTINUE_ON_ERROR"); v != "" {
		config.Run.ContinueOnError = v == "true" || v == "1"
	}

	if v := os.Getenv("PARAMSWEEP_PERSIST_EACH_RUN"); v != "" {
		config.Run.PersistEachRun = v == "true" || v == "1"
	}

	if v := os.Getenv("PARAMSWEEP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
