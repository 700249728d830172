// Package config provides configuration loading and management for viewsplit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"viewsplit/pkg/cleanup"
	"viewsplit/pkg/isolation"
	"viewsplit/pkg/layout"
	"viewsplit/pkg/pipeline"
	"viewsplit/pkg/profile"
	"viewsplit/pkg/recrop"
	"viewsplit/pkg/segment"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds how many panels are processed in parallel
		NumCores int `yaml:"numCores"`

		// Profile controls the gap-score statistics
		Profile profile.Params `yaml:"profile"`
	} `yaml:"processing"`

	// Layout inference parameters
	Layout struct {
		// Rows and Cols force a grid shape when both are positive
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`

		layout.Params `yaml:",inline"`
	} `yaml:"layout"`

	// Segmentation parameters
	Segmentation segment.Params `yaml:"segmentation"`

	// Isolation backend and limits
	Isolation struct {
		isolation.BackendConfig `yaml:",inline"`

		// Timeout applies to each backend call
		Timeout time.Duration `yaml:"timeout"`

		// MaxInFlight caps concurrent backend calls
		MaxInFlight int64 `yaml:"maxInFlight"`
	} `yaml:"isolation"`

	// Cleanup parameters
	Cleanup cleanup.Params `yaml:"cleanup"`

	// Recrop parameters
	Recrop recrop.Params `yaml:"recrop"`

	// Output parameters
	Output struct {
		// Dir is where view images are written
		Dir string `yaml:"dir"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir receives the stage dumps
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Profile = profile.DefaultParams()

	cfg.Layout.Params = layout.DefaultParams()
	cfg.Segmentation = segment.DefaultParams()

	// Built-in border matting works without a server
	cfg.Isolation.BackendConfig = isolation.DefaultBackendConfig()
	opts := isolation.DefaultOptions()
	cfg.Isolation.Timeout = opts.Timeout
	cfg.Isolation.MaxInFlight = opts.MaxInFlight

	cfg.Cleanup = cleanup.DefaultParams()
	cfg.Recrop = recrop.DefaultParams()

	// Set default output parameters
	cfg.Output.Dir = "views"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = false

	return cfg
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Processing.NumCores < 0 {
		errs = append(errs, fmt.Errorf("processing.numCores must not be negative, got %d", c.Processing.NumCores))
	}
	if (c.Layout.Rows > 0) != (c.Layout.Cols > 0) {
		errs = append(errs, fmt.Errorf("layout.rows and layout.cols must be set together, got %dx%d", c.Layout.Rows, c.Layout.Cols))
	} else if c.Layout.Rows > 0 && !layout.Supported(c.Layout.Rows, c.Layout.Cols) {
		errs = append(errs, fmt.Errorf("layout %dx%d: %w", c.Layout.Rows, c.Layout.Cols, layout.ErrUnsupportedShape))
	}
	if pr := c.Processing.Profile; pr.MinStdWindow < 1 || pr.MinSmoothWindow < 1 {
		errs = append(errs, fmt.Errorf("processing.profile window minimums must be at least 1, got %d/%d", pr.MinStdWindow, pr.MinSmoothWindow))
	}
	if pr := c.Processing.Profile; pr.StdWindowDivisor < 1 || pr.SmoothWindowDivisor < 1 {
		errs = append(errs, fmt.Errorf("processing.profile window divisors must be at least 1, got %d/%d", pr.StdWindowDivisor, pr.SmoothWindowDivisor))
	}
	if c.Processing.Profile.EdgeThreshold < 0 {
		errs = append(errs, fmt.Errorf("processing.profile.edgeThreshold must not be negative, got %g", c.Processing.Profile.EdgeThreshold))
	}

	l := c.Layout.Params
	if len(l.ColumnCandidates) == 0 || slices.ContainsFunc(l.ColumnCandidates, func(k int) bool { return k < 0 }) {
		errs = append(errs, fmt.Errorf("layout.columnCandidates must be non-empty and non-negative, got %v", l.ColumnCandidates))
	}
	if slices.ContainsFunc(l.RowCandidates, func(k int) bool { return k < 0 }) {
		errs = append(errs, fmt.Errorf("layout.rowCandidates must be non-negative, got %v", l.RowCandidates))
	}
	if l.SearchFraction <= 0 || l.SearchFraction > 0.5 {
		errs = append(errs, fmt.Errorf("layout.searchFraction must be in (0, 0.5], got %g", l.SearchFraction))
	}
	if l.AcceptStdFactor < 0 {
		errs = append(errs, fmt.Errorf("layout.acceptStdFactor must not be negative, got %g", l.AcceptStdFactor))
	}
	if l.TieTolerance < 0 || l.TieTolerance >= 1 {
		errs = append(errs, fmt.Errorf("layout.tieTolerance must be in [0, 1), got %g", l.TieTolerance))
	}
	if l.NestTolerance < 0 {
		errs = append(errs, fmt.Errorf("layout.nestTolerance must not be negative, got %d", l.NestTolerance))
	}
	if l.MaxCols < 1 || l.MaxRows < 1 {
		errs = append(errs, fmt.Errorf("layout.maxCols and layout.maxRows must be at least 1, got %d/%d", l.MaxCols, l.MaxRows))
	}
	if l.MinGridDim < 1 {
		errs = append(errs, fmt.Errorf("layout.minGridDim must be at least 1, got %d", l.MinGridDim))
	}
	if l.ProbeFraction <= 0 || l.ProbeFraction > 0.25 {
		errs = append(errs, fmt.Errorf("layout.probeFraction must be in (0, 0.25], got %g", l.ProbeFraction))
	}
	if l.StripFraction <= 0 || l.StripFraction > 1 {
		errs = append(errs, fmt.Errorf("layout.stripFraction must be in (0, 1], got %g", l.StripFraction))
	}
	if l.StripRatio < 0 {
		errs = append(errs, fmt.Errorf("layout.stripRatio must not be negative, got %g", l.StripRatio))
	}
	if l.SharpnessThreshold < 0 {
		errs = append(errs, fmt.Errorf("layout.sharpnessThreshold must not be negative, got %g", l.SharpnessThreshold))
	}
	if l.SharpnessWeight < 0 {
		errs = append(errs, fmt.Errorf("layout.sharpnessWeight must not be negative, got %d", l.SharpnessWeight))
	}
	if l.LinearAspect <= 0 || l.GridAspect <= 0 || l.GridAspect > l.LinearAspect {
		errs = append(errs, fmt.Errorf("layout aspects must be positive with gridAspect <= linearAspect, got %g/%g", l.GridAspect, l.LinearAspect))
	}

	if r := c.Segmentation.OverlapRatio; r < 0 || r >= 0.5 {
		errs = append(errs, fmt.Errorf("segmentation.overlapRatio must be in [0, 0.5), got %g", r))
	}
	if c.Isolation.Timeout < 0 {
		errs = append(errs, fmt.Errorf("isolation.timeout must not be negative, got %s", c.Isolation.Timeout))
	}
	if c.Isolation.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("isolation.maxInFlight must be at least 1, got %d", c.Isolation.MaxInFlight))
	}
	if r := c.Cleanup.MinAreaRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("cleanup.minAreaRatio must be in [0, 1], got %g", r))
	}
	if c.Cleanup.AlphaThreshold == math.MaxUint8 {
		errs = append(errs, errors.New("cleanup.alphaThreshold must be below 255"))
	}
	if c.Recrop.AlphaThreshold == math.MaxUint8 {
		errs = append(errs, errors.New("recrop.alphaThreshold must be below 255"))
	}
	if c.Recrop.TargetSize <= 0 {
		errs = append(errs, fmt.Errorf("recrop.targetSize must be positive, got %d", c.Recrop.TargetSize))
	}
	if c.Recrop.Padding < 0 {
		errs = append(errs, fmt.Errorf("recrop.padding must not be negative, got %d", c.Recrop.Padding))
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir must be set"))
	}

	return errors.Join(errs...)
}

// PipelineParams converts the configuration into pipeline parameters,
// building the configured isolation backend
func (c *Config) PipelineParams() (pipeline.Params, error) {
	remover, err := isolation.New(c.Isolation.BackendConfig)
	if err != nil {
		return pipeline.Params{}, err
	}

	return pipeline.Params{
		Workers:   c.Processing.NumCores,
		Profile:   c.Processing.Profile,
		Layout:    c.Layout.Params,
		ForceRows: c.Layout.Rows,
		ForceCols: c.Layout.Cols,
		Segment:   c.Segmentation,
		Remover:   remover,
		Isolation: isolation.Options{
			Timeout:     c.Isolation.Timeout,
			MaxInFlight: c.Isolation.MaxInFlight,
		},
		Cleanup:                 c.Cleanup,
		Recrop:                  c.Recrop,
		SaveIntermediaryResults: c.Output.SaveIntermediaryResults,
		IntermediaryDir:         c.Output.IntermediaryDir,
	}, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
