// Package benchmark - Measures classification throughput per model over a set
// of images.
package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/nvr-ai/visiondrop/images"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

// Scenario is one model run over the image set.
type Scenario struct {
	Name       string     `json:"name"`
	Model      model.Name `json:"model"`
	Iterations int        `json:"iterations"`
	WarmupRuns int        `json:"warmup_runs"`
}

// PerformanceMetrics captures the timings of one scenario.
type PerformanceMetrics struct {
	Scenario           Scenario      `json:"scenario"`
	Timestamp          time.Time     `json:"timestamp"`
	LoadDuration       time.Duration `json:"load_duration"`
	TotalDuration      time.Duration `json:"total_duration"`
	PreprocessDuration time.Duration `json:"preprocess_duration"`
	InferenceDuration  time.Duration `json:"inference_duration"`
	ImagesPerSecond    float64       `json:"images_per_second"`
	MemoryStats        MemoryMetrics `json:"memory_stats"`
	NumCPU             int           `json:"num_cpu"`
	TopLabels          []string      `json:"top_labels"`
	ErrorRate          float64       `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// Classifier is the model adapter under test.
type Classifier interface {
	Load(ctx context.Context, variant model.Variant) (model.InputSpec, error)
	Classify(ctx context.Context, input *tensor.Dense) ([]model.Prediction, error)
	Active() (model.Variant, *preprocess.Preprocessor, error)
}

// Pipeline prepares model tensors.
type Pipeline interface {
	Load(ctx context.Context, path string, pre *preprocess.Preprocessor) (*images.Artifacts, error)
}

// Suite runs scenarios against one classifier.
type Suite struct {
	classifier Classifier
	pipeline   Pipeline
	log        logrus.FieldLogger
	images     []string

	mu      sync.RWMutex
	results []PerformanceMetrics
}

// NewSuite creates a suite over a set of image paths.
//
// Arguments:
// - classifier: The model adapter.
// - pipeline: The image pipeline.
// - paths: The images classified in every iteration, in order.
// - log: Receives one line per finished scenario.
//
// Returns:
// - *Suite: The suite.
// - error: An error if no images are given.
func NewSuite(classifier Classifier, pipeline Pipeline, paths []string, log logrus.FieldLogger) (*Suite, error) {
	if len(paths) == 0 {
		return nil, errors.New("no images to benchmark")
	}
	return &Suite{
		classifier: classifier,
		pipeline:   pipeline,
		log:        log,
		images:     append([]string(nil), paths...),
	}, nil
}

// DefaultScenarios returns one scenario per registered model.
func DefaultScenarios(iterations, warmup int) []Scenario {
	var scenarios []Scenario
	for _, v := range models.All() {
		scenarios = append(scenarios, Scenario{
			Name:       string(v.Name),
			Model:      v.Name,
			Iterations: iterations,
			WarmupRuns: warmup,
		})
	}
	return scenarios
}

// RunScenario loads the scenario's model and classifies the image set
// Iterations times. Images that fail count towards the error rate.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if scenario.Iterations <= 0 {
		return nil, fmt.Errorf("scenario %s: iterations must be positive", scenario.Name)
	}
	variant, err := models.Lookup(string(scenario.Model))
	if err != nil {
		return nil, err
	}

	loadStart := time.Now()
	if _, err := s.classifier.Load(ctx, variant); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	metrics := &PerformanceMetrics{
		Scenario:     scenario,
		Timestamp:    time.Now(),
		LoadDuration: time.Since(loadStart),
		NumCPU:       runtime.NumCPU(),
	}

	_, pre, err := s.classifier.Active()
	if err != nil {
		return nil, err
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		_, _, _, _ = s.processImage(ctx, s.images[i%len(s.images)], pre)
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	total := scenario.Iterations * len(s.images)
	failures := 0
	start := time.Now()
	for i := 0; i < scenario.Iterations; i++ {
		for _, path := range s.images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			label, preDur, infDur, err := s.processImage(ctx, path, pre)
			if err != nil {
				failures++
				continue
			}
			metrics.PreprocessDuration += preDur
			metrics.InferenceDuration += infDur
			if i == 0 {
				metrics.TopLabels = append(metrics.TopLabels, label)
			}
		}
	}
	metrics.TotalDuration = time.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
	}

	if succeeded := total - failures; succeeded > 0 {
		metrics.PreprocessDuration /= time.Duration(succeeded)
		metrics.InferenceDuration /= time.Duration(succeeded)
		if secs := metrics.TotalDuration.Seconds(); secs > 0 {
			metrics.ImagesPerSecond = float64(succeeded) / secs
		}
	}
	metrics.ErrorRate = float64(failures) / float64(total)

	s.mu.Lock()
	s.results = append(s.results, *metrics)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"scenario":   scenario.Name,
		"load":       metrics.LoadDuration.Truncate(time.Millisecond).String(),
		"preprocess": metrics.PreprocessDuration.Truncate(time.Microsecond).String(),
		"inference":  metrics.InferenceDuration.Truncate(time.Microsecond).String(),
		"images_sec": fmt.Sprintf("%.2f", metrics.ImagesPerSecond),
		"error_rate": fmt.Sprintf("%.2f", metrics.ErrorRate),
	}).Info("Scenario complete")

	return metrics, nil
}

// RunAll runs every scenario in order. A scenario whose model fails to load
// is logged and skipped.
func (s *Suite) RunAll(ctx context.Context, scenarios []Scenario) []PerformanceMetrics {
	var out []PerformanceMetrics
	for _, scenario := range scenarios {
		m, err := s.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.WithError(err).WithField("scenario", scenario.Name).Error("Scenario failed")
			continue
		}
		out = append(out, *m)
	}
	return out
}

// Results returns every finished scenario.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PerformanceMetrics(nil), s.results...)
}

// SaveResults writes the finished scenarios as indented JSON.
func (s *Suite) SaveResults(path string) error {
	data, err := json.MarshalIndent(s.Results(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Suite) processImage(ctx context.Context, path string, pre *preprocess.Preprocessor) (string, time.Duration, time.Duration, error) {
	preStart := time.Now()
	artifacts, err := s.pipeline.Load(ctx, path, pre)
	if err != nil {
		return "", 0, 0, err
	}
	preDur := time.Since(preStart)

	infStart := time.Now()
	predictions, err := s.classifier.Classify(ctx, artifacts.Tensor)
	if err != nil {
		return "", 0, 0, fmt.Errorf("inference failed: %w", err)
	}
	if len(predictions) == 0 {
		return "", 0, 0, errors.New("no predictions")
	}
	return predictions[0].Label, preDur, time.Since(infStart), nil
}
