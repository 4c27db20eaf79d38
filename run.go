package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/nvr-ai/visiondrop/config"
	"github.com/nvr-ai/visiondrop/controller"
	"github.com/nvr-ai/visiondrop/display"
	"github.com/nvr-ai/visiondrop/images"
	"github.com/nvr-ai/visiondrop/inference"
	"github.com/nvr-ai/visiondrop/profiler"
	"github.com/nvr-ai/visiondrop/speech"
	"github.com/nvr-ai/visiondrop/ui/console"
	"github.com/sirupsen/logrus"
)

// run wires the application together and blocks in the console loop.
func run(ctx context.Context, cfg config.Config, initial string) error {
	var con *console.Console
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		AutoComplete:    console.NewCompleter(func() []string { return con.Entries() }),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	closeLog, err := configureLogging(cfg.Log, rl.Stderr())
	if err != nil {
		return err
	}
	defer closeLog()

	prof := profiler.NewProfiler(log.WithField("component", "profiler"), profiler.ProfilingOptions{
		ReportInterval: cfg.Profiling.ReportInterval,
	})
	prof.Start()
	defer prof.Stop()

	var window console.Thumbnailer
	if cfg.Display.Window {
		w, err := display.NewWindow(display.DefaultTitle, cfg.ThumbnailSize)
		if err != nil {
			return err
		}
		defer func() {
			_ = w.Close()
		}()
		window = w
	}

	con, err = console.New(console.Options{
		Out:    rl.Stdout(),
		Log:    log.WithField("component", "console"),
		Window: window,
	})
	if err != nil {
		return err
	}

	rt, err := inference.NewORTRuntime(cfg.ONNXRuntime, log.WithField("component", "onnxruntime"))
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
	}()

	classifier, err := inference.NewClassifier(rt, inference.Config{
		ModelsDir:  cfg.ModelsDir,
		LabelsFile: cfg.LabelsFile,
		TopK:       cfg.TopK,
	}, log.WithField("component", "classifier"), prof)
	if err != nil {
		return err
	}
	defer func() {
		_ = classifier.Close()
	}()

	pipeline, err := images.NewPipeline(cfg.ThumbnailSize)
	if err != nil {
		return err
	}

	speaker := speech.NewSpeaker(newSpeechEngine(cfg.Speech, con), cfg.SpokenResults,
		log.WithField("component", "speech"), prof)

	ctrl, err := controller.New(controller.Options{
		Classifier: classifier,
		Pipeline:   pipeline,
		Speaker:    speaker,
		View:       con,
		Dispatcher: con,
		Log:        log.WithField("component", "controller"),
		Profiler:   prof,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	log.WithFields(logrus.Fields{
		"model":   cfg.Model,
		"backend": cfg.ONNXRuntime.Backend,
		"speech":  speaker.Engine(),
	}).Info("Starting")

	con.SetStatus(controller.StatusReady)
	ctrl.LoadModel(cfg.Model)
	if initial != "" {
		path, err := console.ParseDrop(initial)
		if err != nil {
			con.Notify(err)
		} else {
			ctrl.Open(path)
		}
	}

	if err := con.Run(ctx, ctrl, rl); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// newSpeechEngine returns nil when speech is disabled or unavailable.
func newSpeechEngine(cfg config.Speech, con *console.Console) speech.Engine {
	if !cfg.Enabled {
		return nil
	}
	engine, err := speech.NewCommandEngine(cfg.Command)
	if err != nil {
		log.WithError(err).Warn("Speech engine unavailable")
		con.Warn(fmt.Sprintf("Text to speech is disabled: %v", err))
		return nil
	}
	return engine
}

// configureLogging applies the level and routes output to the log file, or
// to out when none is set.
func configureLogging(cfg config.Log, out io.Writer) (func(), error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	log.SetOutput(out)

	if cfg.File == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFormatter(&logrus.JSONFormatter{})
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
