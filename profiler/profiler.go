// Package profiler - Operation timing and periodic runtime reports.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// Operation names recorded by the application.
const (
	OpModelLoad      = "model_load"
	OpClassification = "classification"
	OpPreprocess     = "preprocess"
	OpInference      = "inference"
	OpSpeech         = "speech"
)

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of one operation's timings.
type OperationStats struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// ProfilingOptions configures the profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a report. Zero disables
	// periodic reports; a final report is still logged on Stop.
	ReportInterval time.Duration
	// MaxSamples specifies how many durations per operation are kept (default: 600)
	MaxSamples int
}

// Profiler records operation durations and logs summaries of them.
//
// A nil *Profiler is valid and records nothing, so components can take one
// optionally.
type Profiler struct {
	log            logrus.FieldLogger
	reportInterval time.Duration
	maxSamples     int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	operationTimes map[string]*TimeTracker
}

// NewProfiler creates a new profiler with the specified options.
//
// Arguments:
// - log: Destination of the reports.
// - opts: Configuration options for the profiler.
//
// Returns:
// - A configured Profiler instance.
func NewProfiler(log logrus.FieldLogger, opts ProfilingOptions) *Profiler {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Profiler{
		log:            log,
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting if a report interval is configured. It can
// be called multiple times safely.
func (p *Profiler) Start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.startTime = time.Now()

	if p.reportInterval <= 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and logs a final report.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.Report()
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track.
//
// Returns:
// - A function to call when the operation completes.
//
// Example:
//
// ```go
//
//	done := p.StartOperation(profiler.OpInference)
//	defer done()
//
// ```
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds a completed operation duration.
func (p *Profiler) Record(name string, duration time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		p.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > p.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns the statistics of one operation.
func (p *Profiler) Stats(name string) (OperationStats, bool) {
	if p == nil {
		return OperationStats{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, ok := p.operationTimes[name]
	if !ok || len(tracker.durations) == 0 {
		return OperationStats{}, false
	}
	return tracker.stats(), true
}

// Snapshot returns the statistics of every recorded operation, sorted by name.
func (p *Profiler) Snapshot() []OperationStats {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]OperationStats, 0, len(p.operationTimes))
	for _, tracker := range p.operationTimes {
		if len(tracker.durations) > 0 {
			out = append(out, tracker.stats())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs the runtime state and one line per recorded operation.
func (p *Profiler) Report() {
	if p == nil || p.log == nil {
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.RLock()
	uptime := time.Since(p.startTime)
	p.mu.RUnlock()

	p.log.WithFields(logrus.Fields{
		"uptime":     uptime.Truncate(time.Millisecond).String(),
		"goroutines": runtime.NumGoroutine(),
		"cgo_calls":  runtime.NumCgoCall(),
		"heap_alloc": units.BytesSize(float64(mem.HeapAlloc)),
		"sys":        units.BytesSize(float64(mem.Sys)),
		"gc_cycles":  mem.NumGC,
	}).Info("Runtime profile")

	for _, s := range p.Snapshot() {
		p.log.WithFields(logrus.Fields{
			"operation": s.Name,
			"count":     s.Count,
			"avg":       s.Avg.Truncate(time.Microsecond).String(),
			"min":       s.Min.Truncate(time.Microsecond).String(),
			"max":       s.Max.Truncate(time.Microsecond).String(),
		}).Info("Operation timing")
	}
}

func (t *TimeTracker) stats() OperationStats {
	return OperationStats{
		Name:  t.name,
		Count: t.count,
		Avg:   t.totalTime / time.Duration(len(t.durations)),
		Min:   t.minTime,
		Max:   t.maxTime,
	}
}
