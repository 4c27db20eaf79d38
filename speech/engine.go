// Package speech - Text-to-speech engines and the prediction speaker.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrSpeech is returned when the speech engine is unavailable or playback fails.
	ErrSpeech = errors.New("speech error")
	// ErrBusy is returned when an utterance batch is already playing.
	ErrBusy = errors.New("speech already in progress")
)

// Engine queues utterances and plays them.
type Engine interface {
	// Name returns the human-readable name of the engine.
	Name() string
	// Say queues text for the next RunAndWait.
	Say(text string)
	// RunAndWait plays every queued utterance in order and blocks until done.
	// The queue is empty afterwards, even on failure.
	RunAndWait(ctx context.Context) error
}
