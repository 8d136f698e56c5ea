// Package config provides configuration loading and management for rtvolume.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds how many patients are measured concurrently
		NumCores int `yaml:"numCores"`

		// FileExtension selects study files inside a directory or archive
		FileExtension string `yaml:"fileExtension"`
	} `yaml:"processing"`

	// Geometry engine parameters
	Geometry struct {
		// RelativeTolerance scales the coplanarity threshold by the
		// magnitude of the point coordinates
		RelativeTolerance float64 `yaml:"relativeTolerance"`

		// DedupeTolerance merges contour points closer than this many mm;
		// zero keeps every point
		DedupeTolerance float64 `yaml:"dedupeTolerance"`
	} `yaml:"geometry"`

	// Output parameters
	Output struct {
		// Verbose prints point cloud statistics next to each volume
		Verbose bool `yaml:"verbose"`

		// STLDir receives one hull mesh per patient when set
		STLDir string `yaml:"stlDir"`

		// MetricsFile receives Prometheus text-format metrics after a run
		MetricsFile string `yaml:"metricsFile"`
	} `yaml:"output"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.FileExtension = ".dcm"

	cfg.Geometry.RelativeTolerance = 1e-10

	cfg.Output.Verbose = false

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be positive, got %d", c.Processing.NumCores)
	}
	if c.Processing.FileExtension == "" {
		return fmt.Errorf("processing.fileExtension must not be empty")
	}
	if c.Geometry.RelativeTolerance <= 0 {
		return fmt.Errorf("geometry.relativeTolerance must be positive, got %g", c.Geometry.RelativeTolerance)
	}
	if c.Geometry.DedupeTolerance < 0 {
		return fmt.Errorf("geometry.dedupeTolerance must not be negative, got %g", c.Geometry.DedupeTolerance)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
