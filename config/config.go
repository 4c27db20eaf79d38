// Package config - Application configuration loaded from YAML over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nvr-ai/visiondrop/images"
	"github.com/nvr-ai/visiondrop/inference"
	"github.com/nvr-ai/visiondrop/inference/providers"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/nvr-ai/visiondrop/speech"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given explicitly.
const DefaultPath = "visiondrop.yaml"

// maxTopK bounds how many predictions can be requested.
const maxTopK = 10

// Config is the complete application configuration.
type Config struct {
	// Model is the model loaded at startup.
	Model string `json:"model" yaml:"model"`
	// ModelsDir holds the ONNX files and the label file.
	ModelsDir string `json:"models_dir" yaml:"models_dir"`
	// LabelsFile is the class index file, relative to ModelsDir unless absolute.
	LabelsFile string `json:"labels_file" yaml:"labels_file"`
	// ThumbnailSize bounds both thumbnail dimensions.
	ThumbnailSize int `json:"thumbnail_size" yaml:"thumbnail_size"`
	// TopK is the number of predictions shown.
	TopK int `json:"top_k" yaml:"top_k"`
	// SpokenResults is the number of predictions read aloud.
	SpokenResults int `json:"spoken_results" yaml:"spoken_results"`

	ONNXRuntime providers.Config `json:"onnxruntime" yaml:"onnxruntime"`
	Speech      Speech           `json:"speech" yaml:"speech"`
	Display     Display          `json:"display" yaml:"display"`
	Log         Log              `json:"log" yaml:"log"`
	Profiling   Profiling        `json:"profiling" yaml:"profiling"`
}

// Speech configures the text-to-speech engine.
type Speech struct {
	// Enabled turns speech on.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Command is the speech command line; empty auto-detects.
	Command string `json:"command" yaml:"command"`
}

// Display configures the thumbnail window.
type Display struct {
	// Window shows thumbnails in an OpenCV window.
	Window bool `json:"window" yaml:"window"`
}

// Log configures logging.
type Log struct {
	// Level is a logrus level name.
	Level string `json:"level" yaml:"level"`
	// File receives log output instead of the console when set.
	File string `json:"file" yaml:"file"`
}

// Profiling configures operation timing reports.
type Profiling struct {
	// ReportInterval logs a timing report periodically when positive.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Model:         string(models.Default),
		ModelsDir:     "models",
		LabelsFile:    "imagenet_class_index.json",
		ThumbnailSize: images.DefaultThumbnailSize,
		TopK:          inference.DefaultTopK,
		SpokenResults: speech.DefaultSpokenResults,
		ONNXRuntime:   providers.DefaultConfig(),
		Speech:        Speech{Enabled: true},
		Log:           Log{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults.
//
// A missing file is only an error when explicit is set, so the default path
// can be absent.
//
// Arguments:
//   - path: The config file.
//   - explicit: Whether the user named the file.
//
// Returns:
//   - Config: The merged configuration, not yet validated.
//   - error: An error if the file is unreadable or malformed.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := models.Lookup(c.Model); err != nil {
		return err
	}
	if c.ModelsDir == "" {
		return errors.New("models_dir is required")
	}
	if c.LabelsFile == "" {
		return errors.New("labels_file is required")
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("thumbnail_size must be positive, got %d", c.ThumbnailSize)
	}
	if c.TopK < 1 || c.TopK > maxTopK {
		return fmt.Errorf("top_k must be between 1 and %d, got %d", maxTopK, c.TopK)
	}
	if c.SpokenResults < 1 || c.SpokenResults > c.TopK {
		return fmt.Errorf("spoken_results must be between 1 and top_k (%d), got %d", c.TopK, c.SpokenResults)
	}
	if err := c.ONNXRuntime.Validate(); err != nil {
		return fmt.Errorf("onnxruntime: %w", err)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Profiling.ReportInterval < 0 {
		return fmt.Errorf("profiling.report_interval must not be negative, got %s", c.Profiling.ReportInterval)
	}
	return nil
}
