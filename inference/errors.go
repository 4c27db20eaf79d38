package inference

import "errors"

var (
	// ErrModelLoad is returned when model weights or labels cannot be loaded.
	ErrModelLoad = errors.New("model load error")
	// ErrInference is returned when a loaded model fails to classify an input.
	ErrInference = errors.New("inference error")
)
