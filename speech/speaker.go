package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/profiler"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultSpokenResults is how many predictions are read aloud.
const DefaultSpokenResults = 3

// Speaker reads predictions aloud, one batch at a time.
type Speaker struct {
	engine   Engine
	maxLines int
	sem      *semaphore.Weighted
	log      logrus.FieldLogger
	profiler *profiler.Profiler
}

// NewSpeaker creates a speaker for engine. A nil engine yields a disabled
// speaker whose Speak is a no-op.
//
// Arguments:
//   - engine: The speech engine, nil when initialisation failed.
//   - maxLines: How many predictions to read, DefaultSpokenResults when zero.
//   - log: The logger for speech events.
//   - prof: Records playback timings, may be nil.
//
// Returns:
//   - *Speaker: The speaker.
func NewSpeaker(engine Engine, maxLines int, log logrus.FieldLogger, prof *profiler.Profiler) *Speaker {
	if maxLines <= 0 {
		maxLines = DefaultSpokenResults
	}
	return &Speaker{
		engine:   engine,
		maxLines: maxLines,
		sem:      semaphore.NewWeighted(1),
		log:      log,
		profiler: prof,
	}
}

// Available reports whether an engine is present.
func (s *Speaker) Available() bool {
	return s != nil && s.engine != nil
}

// Engine returns the name of the engine, or "" when disabled.
func (s *Speaker) Engine() string {
	if !s.Available() {
		return ""
	}
	return s.engine.Name()
}

// Lines formats up to the speaker's line limit of predictions in rank order.
func (s *Speaker) Lines(predictions []model.Prediction) []string {
	n := len(predictions)
	if n > s.maxLines {
		n = s.maxLines
	}
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = FormatLine(i+1, predictions[i])
	}
	return lines
}

// Speak queues the top predictions on the engine and blocks until playback
// completes. It is a no-op when no engine is available.
//
// Arguments:
//   - ctx: Cancels playback.
//   - predictions: Ranked predictions, highest first.
//
// Returns:
//   - error: ErrBusy if a batch is already playing, an error wrapping
//     ErrSpeech on playback failure, or ctx.Err().
func (s *Speaker) Speak(ctx context.Context, predictions []model.Prediction) error {
	if !s.Available() || len(predictions) == 0 {
		return nil
	}
	if !s.sem.TryAcquire(1) {
		return ErrBusy
	}
	defer s.sem.Release(1)

	done := s.profiler.StartOperation(profiler.OpSpeech)
	defer done()

	lines := s.Lines(predictions)
	for _, line := range lines {
		s.engine.Say(line)
	}
	s.log.WithFields(logrus.Fields{"engine": s.engine.Name(), "lines": len(lines)}).Debug("Speaking results")

	if err := s.engine.RunAndWait(ctx); err != nil {
		if errors.Is(err, ErrSpeech) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrSpeech, s.engine.Name(), err)
	}
	return nil
}

// FormatLine formats one spoken prediction, e.g.
// "Prediction 1: golden_retriever, 87.25 percent."
func FormatLine(rank int, p model.Prediction) string {
	return fmt.Sprintf("Prediction %d: %s, %.2f percent.", rank, p.Label, p.Probability*100)
}
