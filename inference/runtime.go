// Package inference - Classifier adapter over an ONNX inference runtime.
package inference

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/visiondrop/models/model"
)

// TensorInfo describes one model input or output.
type TensorInfo struct {
	// Name is the graph node name.
	Name string
	// Shape holds the declared dimensions. Dynamic dimensions are -1.
	Shape []int64
}

// String formats the info as "name[1 224 224 3]".
func (i TensorInfo) String() string {
	dims := make([]string, len(i.Shape))
	for n, d := range i.Shape {
		dims[n] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%s[%s]", i.Name, strings.Join(dims, " "))
}

// Runtime opens model sessions.
type Runtime interface {
	// Open loads the model at path with its input bound to the given spec.
	Open(path string, input model.InputSpec) (Session, error)
}

// Session is a loaded model ready to run single image batches.
type Session interface {
	// Input describes the bound input.
	Input() TensorInfo
	// Output describes the bound output.
	Output() TensorInfo
	// Run executes the model on one NHWC batch and returns the output vector.
	Run(input []float32) ([]float32, error)
	// Close releases the session.
	Close() error
}

// checkInputShape verifies that a declared NHWC input agrees with spec. Dynamic
// dimensions accept any size.
func checkInputShape(declared []int64, spec model.InputSpec) error {
	if len(declared) != 4 {
		return fmt.Errorf("expected a 4D NHWC input, model declares %v", declared)
	}
	expected := []int64{1, int64(spec.Height), int64(spec.Width), int64(spec.Channels)}
	names := []string{"batch", "height", "width", "channels"}
	for i, d := range declared {
		if d > 0 && d != expected[i] {
			return fmt.Errorf("model input %s is %d, expected %d (declared %v, want %s)", names[i], d, expected[i], declared, spec)
		}
	}
	return nil
}

// outputWidth returns the class count of a (batch, classes) output.
func outputWidth(declared []int64) (int, error) {
	if len(declared) != 2 {
		return 0, fmt.Errorf("expected a 2D (batch, classes) output, model declares %v", declared)
	}
	if declared[0] > 1 {
		return 0, fmt.Errorf("output batch %d is not 1", declared[0])
	}
	if declared[1] <= 0 {
		return 0, fmt.Errorf("output class dimension is dynamic: %v", declared)
	}
	return int(declared[1]), nil
}
