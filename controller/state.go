package controller

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/visiondrop/models/model"
)

// State is the controller state.
type State int

const (
	// Idle has no results to show.
	Idle State = iota
	// Processing has a model load or classification in flight.
	Processing
	// ResultsReady shows the predictions of the current image.
	ResultsReady
	// Error is entered when a request fails and left as soon as the failure is reported.
	Error
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case ResultsReady:
		return "results-ready"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the current result. It is replaced wholesale, never patched.
type Session struct {
	// ImagePath is the classified image, empty when none.
	ImagePath string
	// Predictions are the ranked results for ImagePath, nil when none.
	Predictions []model.Prediction
	// Model is the active model choice.
	Model model.Name
}

// HasResults reports whether the session holds predictions.
func (s Session) HasResults() bool {
	return s.ImagePath != "" && len(s.Predictions) > 0
}

// FormatResults formats predictions one per line as "1. label (87.25%)".
func FormatResults(predictions []model.Prediction) string {
	lines := make([]string, len(predictions))
	for i, p := range predictions {
		lines[i] = fmt.Sprintf("%d. %s (%.2f%%)", i+1, p.Label, p.Probability*100)
	}
	return strings.Join(lines, "\n")
}
