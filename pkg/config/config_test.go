package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsplit/pkg/isolation"
	"viewsplit/pkg/layout"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Missing file should give defaults (-want +got):\n%s", diff)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewsplit.yaml")
	data := `
processing:
  numCores: 3
layout:
  rows: 2
  cols: 3
  tieTolerance: 0.1
isolation:
  backend: http
  endpoint: http://matting:7000/api/remove
  model: isnet-anime
  timeout: 15s
  maxInFlight: 4
  border:
    estimator: kmeans
cleanup:
  minAreaRatio: 0.05
recrop:
  targetSize: 512
output:
  dir: out
  saveIntermediaryResults: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Processing.NumCores)
	assert.Equal(t, 2, cfg.Layout.Rows)
	assert.Equal(t, 3, cfg.Layout.Cols)
	assert.Equal(t, 0.1, cfg.Layout.TieTolerance)
	assert.Equal(t, "http", cfg.Isolation.Backend)
	assert.Equal(t, "isnet-anime", cfg.Isolation.Model)
	assert.Equal(t, 15*time.Second, cfg.Isolation.Timeout)
	assert.Equal(t, int64(4), cfg.Isolation.MaxInFlight)
	assert.Equal(t, isolation.EstimatorKMeans, cfg.Isolation.Border.Estimator)
	assert.Equal(t, 0.05, cfg.Cleanup.MinAreaRatio)
	assert.Equal(t, 512, cfg.Recrop.TargetSize)
	assert.True(t, cfg.Output.SaveIntermediaryResults)

	// Untouched keys keep their defaults
	def := DefaultConfig()
	assert.Equal(t, def.Layout.SearchFraction, cfg.Layout.SearchFraction)
	assert.Equal(t, def.Isolation.Border.BorderWidth, cfg.Isolation.Border.BorderWidth)
	assert.Equal(t, def.Recrop.Padding, cfg.Recrop.Padding)
	assert.Equal(t, def.Segmentation, cfg.Segmentation)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [oops"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigOutOfRangeLayoutFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewsplit.yaml")
	data := `
layout:
  searchFraction: 2
  sharpnessWeight: -3
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout.searchFraction")
	assert.Contains(t, err.Error(), "layout.sharpnessWeight")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "viewsplit.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Saved defaults did not round trip (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"forced supported shape", func(c *Config) { c.Layout.Rows, c.Layout.Cols = 2, 4 }, false},
		{"forced unsupported shape", func(c *Config) { c.Layout.Rows, c.Layout.Cols = 3, 3 }, true},
		{"rows without cols", func(c *Config) { c.Layout.Rows = 2 }, true},
		{"negative cores", func(c *Config) { c.Processing.NumCores = -1 }, true},
		{"overlap too large", func(c *Config) { c.Segmentation.OverlapRatio = 0.6 }, true},
		{"no in-flight slots", func(c *Config) { c.Isolation.MaxInFlight = 0 }, true},
		{"ratio above one", func(c *Config) { c.Cleanup.MinAreaRatio = 1.5 }, true},
		{"zero target size", func(c *Config) { c.Recrop.TargetSize = 0 }, true},
		{"negative padding", func(c *Config) { c.Recrop.Padding = -4 }, true},
		{"no output dir", func(c *Config) { c.Output.Dir = "" }, true},
		{"zero std divisor", func(c *Config) { c.Processing.Profile.StdWindowDivisor = 0 }, true},
		{"negative edge threshold", func(c *Config) { c.Processing.Profile.EdgeThreshold = -1 }, true},
		{"search fraction above half", func(c *Config) { c.Layout.SearchFraction = 2 }, true},
		{"negative accept factor", func(c *Config) { c.Layout.AcceptStdFactor = -0.5 }, true},
		{"tie tolerance of one", func(c *Config) { c.Layout.TieTolerance = 1 }, true},
		{"negative nest tolerance", func(c *Config) { c.Layout.NestTolerance = -1 }, true},
		{"negative sharpness weight", func(c *Config) { c.Layout.SharpnessWeight = -3 }, true},
		{"zero max cols", func(c *Config) { c.Layout.MaxCols = 0 }, true},
		{"negative column candidate", func(c *Config) { c.Layout.ColumnCandidates = []int{1, -2} }, true},
		{"inverted aspects", func(c *Config) { c.Layout.GridAspect = 2 }, true},
		{"opaque-only cleanup threshold", func(c *Config) { c.Cleanup.AlphaThreshold = 255 }, true},
		{"opaque-only recrop threshold", func(c *Config) { c.Recrop.AlphaThreshold = 255 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Layout.Rows, cfg.Layout.Cols = 3, 3
	assert.ErrorIs(t, cfg.Validate(), layout.ErrUnsupportedShape)
}

func TestPipelineParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout.Rows, cfg.Layout.Cols = 1, 4
	cfg.Isolation.MaxInFlight = 5

	p, err := cfg.PipelineParams()
	require.NoError(t, err)

	assert.Equal(t, 1, p.ForceRows)
	assert.Equal(t, 4, p.ForceCols)
	assert.Equal(t, int64(5), p.Isolation.MaxInFlight)
	assert.NotNil(t, p.Remover)
	assert.Equal(t, cfg.Recrop, p.Recrop)

	cfg.Isolation.Backend = "nope"
	_, err = cfg.PipelineParams()
	assert.ErrorIs(t, err, isolation.ErrUnknownBackend)
}
