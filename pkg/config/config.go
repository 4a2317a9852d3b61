// Package config provides configuration loading and management for frameconnect.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"frameconnect/pkg/connect"
	"frameconnect/pkg/costmatrix"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Connection parameters
	Connection struct {
		// NDensityNeighbors selects the neighbouring precluster that sets the
		// density length scale
		NDensityNeighbors int `yaml:"nDensityNeighbors"`

		// MaxSigmaDist is the preclustering threshold in units of mean uncertainty
		MaxSigmaDist float64 `yaml:"maxSigmaDist"`

		// MaxFrameGap is the widest frame separation that may be connected
		MaxFrameGap int `yaml:"maxFrameGap"`

		// MaxNeighbors is the number of candidates examined per localization
		MaxNeighbors int `yaml:"maxNeighbors"`

		// PenaltyScale multiplies the summed valid costs for forbidden cells
		PenaltyScale float64 `yaml:"penaltyScale"`
	} `yaml:"connection"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many preclusters are solved concurrently
		NumCores int `yaml:"numCores"`

		// NFrames is the acquisition length; 0 derives it from the input
		NFrames int `yaml:"nFrames"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// WriteConnected also writes the labelled, uncombined localizations
		WriteConnected bool `yaml:"writeConnected"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	defaults := connect.DefaultParams()
	cfg.Connection.NDensityNeighbors = defaults.NDensityNeighbors
	cfg.Connection.MaxSigmaDist = defaults.MaxSigmaDist
	cfg.Connection.MaxFrameGap = defaults.MaxFrameGap
	cfg.Connection.MaxNeighbors = defaults.MaxNeighbors
	cfg.Connection.PenaltyScale = costmatrix.DefaultPenaltyScale

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.NFrames = 0

	cfg.Output.Verbose = false
	cfg.Output.WriteConnected = false

	return cfg
}

// Validate checks every value against the ranges the pipeline accepts
func (c *Config) Validate() error {
	if c.Processing.NFrames < 0 {
		return fmt.Errorf("nFrames must be non-negative, got %d", c.Processing.NFrames)
	}
	if c.Connection.PenaltyScale < 0 {
		return fmt.Errorf("penaltyScale must be non-negative, got %v", c.Connection.PenaltyScale)
	}
	return c.ConnectParams().Validate()
}

// ConnectParams converts the configuration into pipeline parameters
func (c *Config) ConnectParams() *connect.Params {
	return &connect.Params{
		NDensityNeighbors: c.Connection.NDensityNeighbors,
		MaxSigmaDist:      c.Connection.MaxSigmaDist,
		MaxFrameGap:       c.Connection.MaxFrameGap,
		MaxNeighbors:      c.Connection.MaxNeighbors,
		NumCores:          c.Processing.NumCores,
		PenaltyScale:      c.Connection.PenaltyScale,
	}
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
	return SaveConfig(DefaultConfig(), configPath)
}
