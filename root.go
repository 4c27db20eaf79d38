package main

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/visiondrop/config"
	"github.com/nvr-ai/visiondrop/inference/providers"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	model      string
	modelsDir  string
	backend    string
	logLevel   string
	noSpeech   bool
	window     bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	c := &cobra.Command{
		Use:   "visiondrop [IMAGE]",
		Short: "Classify images with pretrained ImageNet models",
		Long: "Drop an image file onto the terminal to see the top predictions of the active model.\n" +
			"Models: " + strings.Join(models.Names(), ", "),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			var initial string
			if len(args) == 1 {
				initial = args[0]
			}
			return run(cmd.Context(), cfg, initial)
		},
	}

	c.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	c.PersistentFlags().StringVar(&flags.modelsDir, "models-dir", "", "Directory holding the ONNX models and the label file")
	c.PersistentFlags().StringVar(&flags.backend, "backend", "", fmt.Sprintf("ONNX Runtime execution provider (%s)", backendNames()))
	c.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	c.Flags().StringVarP(&flags.model, "model", "m", "", fmt.Sprintf("Model to load at startup (%s)", strings.Join(models.Names(), "|")))
	c.Flags().BoolVar(&flags.noSpeech, "no-speech", false, "Disable text to speech")
	c.Flags().BoolVar(&flags.window, "window", false, "Show thumbnails in a window")

	c.AddCommand(newBenchCmd(&flags))
	return c
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, flags rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}

	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.modelsDir != "" {
		cfg.ModelsDir = flags.modelsDir
	}
	if flags.backend != "" {
		backend, err := providers.ParseBackend(flags.backend)
		if err != nil {
			return cfg, err
		}
		cfg.ONNXRuntime.Backend = backend
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.noSpeech {
		cfg.Speech.Enabled = false
	}
	if f := cmd.Flags().Lookup("window"); f != nil && f.Changed {
		cfg.Display.Window = flags.window
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func backendNames() string {
	names := make([]string, len(providers.Backends))
	for i, b := range providers.Backends {
		names[i] = string(b)
	}
	return strings.Join(names, "|")
}
