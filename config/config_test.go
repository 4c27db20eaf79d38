package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/visiondrop/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "MobileNetV2", cfg.Model)
	assert.Equal(t, 350, cfg.ThumbnailSize)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 3, cfg.SpokenResults)
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, providers.CPUProviderBackend, cfg.ONNXRuntime.Backend)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visiondrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: inception
models_dir: /opt/models
onnxruntime:
  backend: coreml
  intra_op_threads: 4
speech:
  command: espeak-ng -s 150
profiling:
  report_interval: 30s
`), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "inception", cfg.Model)
	assert.Equal(t, "/opt/models", cfg.ModelsDir)
	assert.Equal(t, "imagenet_class_index.json", cfg.LabelsFile)
	assert.Equal(t, providers.CoreMLProviderBackend, cfg.ONNXRuntime.Backend)
	assert.Equal(t, 4, cfg.ONNXRuntime.IntraOpThreads)
	assert.Equal(t, "espeak-ng -s 150", cfg.Speech.Command)
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Profiling.ReportInterval)
	assert.Equal(t, 5, cfg.TopK)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, true)
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("top_k: [1, 2"), 0o644))
	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown model", mutate: func(c *Config) { c.Model = "alexnet" }},
		{name: "no models dir", mutate: func(c *Config) { c.ModelsDir = "" }},
		{name: "no labels", mutate: func(c *Config) { c.LabelsFile = "" }},
		{name: "zero thumbnail", mutate: func(c *Config) { c.ThumbnailSize = 0 }},
		{name: "top k zero", mutate: func(c *Config) { c.TopK = 0 }},
		{name: "top k too large", mutate: func(c *Config) { c.TopK = 11 }},
		{name: "spoken exceeds top k", mutate: func(c *Config) { c.TopK = 2; c.SpokenResults = 3 }},
		{name: "bad backend", mutate: func(c *Config) { c.ONNXRuntime.Backend = "tpu" }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "negative interval", mutate: func(c *Config) { c.Profiling.ReportInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
