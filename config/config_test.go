package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/vidpred/metrics"
)

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	opts, err := cfg.MetricOptions()
	require.NoError(t, err)
	assert.Equal(t, metrics.DefaultOptions(), opts)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := writeJSON(t, `{"metrics": {"window": "gaussian", "max_psnr": 100}, "eval": {"frames": 5}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gaussian", cfg.Metrics.Window)
	assert.Equal(t, 100.0, cfg.Metrics.MaxPSNR)
	assert.Equal(t, 5, cfg.Eval.Frames)
	assert.Equal(t, 1.0, cfg.Metrics.DataRange)
	assert.Equal(t, "gaz_pose", cfg.Dataset.Name)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeJSON(t, `{"metric": {}}`))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFlagsOverrideJSON(t *testing.T) {
	path := writeJSON(t, `{"eval": {"frames": 5, "batch_size": 4}, "metrics": {"workers": 2}}`)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-frames", "7", "-window", "gaussian", "-plot=false"}))

	cfg, err := flags.Resolve(path)
	require.NoError(t, err)
	// set on the command line
	assert.Equal(t, 7, cfg.Eval.Frames)
	assert.Equal(t, "gaussian", cfg.Metrics.Window)
	assert.False(t, cfg.Output.Plot)
	// JSON only, flag defaults do not clobber it
	assert.Equal(t, 4, cfg.Eval.BatchSize)
	assert.Equal(t, 2, cfg.Metrics.Workers)
}

func TestResolveWithoutFile(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-gt", "a", "-pred", "b"}))
	cfg, err := flags.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.Eval.GroundTruth)
	assert.Equal(t, "b", cfg.Eval.Predicted)
	assert.Equal(t, Default().Output, cfg.Output)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"frames", func(c *Config) { c.Eval.Frames = 0 }},
		{"batch", func(c *Config) { c.Eval.BatchSize = -1 }},
		{"scale", func(c *Config) { c.Output.GIFScale = -2 }},
		{"window", func(c *Config) { c.Metrics.Window = "box" }},
		{"range", func(c *Config) { c.Metrics.DataRange = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Dataset.NumCandidates = 3
	ds := cfg.DatasetOptions()
	assert.Equal(t, 12, ds.SeqLen())
	assert.Equal(t, 3, ds.NumCandidates)

	g := cfg.GIFOptions()
	assert.Equal(t, cfg.Output.GIFDelay, g.Delay)

	data, err := cfg.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data_range": 1`)
}
