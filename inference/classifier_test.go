package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

const testClassCount = 8

// fakeSession returns a fixed output vector for every run.
type fakeSession struct {
	mu      sync.Mutex
	input   TensorInfo
	output  TensorInfo
	result  []float32
	runErr  error
	runs    int
	closed  bool
	lastLen int
}

func (s *fakeSession) Input() TensorInfo  { return s.input }
func (s *fakeSession) Output() TensorInfo { return s.output }

func (s *fakeSession) Run(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastLen = len(input)
	if s.runErr != nil {
		return nil, s.runErr
	}
	out := make([]float32, len(s.result))
	copy(out, s.result)
	return out, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeRuntime hands out fake sessions keyed by model file name.
type fakeRuntime struct {
	mu       sync.Mutex
	results  map[string][]float32
	width    int
	openErr  map[string]error
	sessions []*fakeSession
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		results: map[string][]float32{
			"mobilenet_v2.onnx": {0.05, 0.4, 0.05, 0.2, 0.1, 0.1, 0.05, 0.05},
			"resnet50.onnx":     {0.3, 0.1, 0.2, 0.1, 0.1, 0.1, 0.05, 0.05},
			"inception_v3.onnx": {2, 1, 0, -1, 3, 0.5, 0.25, 4},
		},
		width:   testClassCount,
		openErr: make(map[string]error),
	}
}

func (r *fakeRuntime) Open(path string, spec model.InputSpec) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := filepath.Base(path)
	if err := r.openErr[name]; err != nil {
		return nil, err
	}
	s := &fakeSession{
		input:  TensorInfo{Name: "input", Shape: []int64{-1, int64(spec.Height), int64(spec.Width), int64(spec.Channels)}},
		output: TensorInfo{Name: "predictions", Shape: []int64{-1, int64(r.width)}},
		result: r.results[name],
	}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func writeLabels(t *testing.T, dir string, n int) {
	t.Helper()
	entries := make([]string, n)
	for i := 0; i < n; i++ {
		entries[i] = fmt.Sprintf(`"%d": ["n%08d", "label_%d"]`, i, i, i)
	}
	data := "{" + strings.Join(entries, ", ") + "}"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "imagenet_class_index.json"), []byte(data), 0o644))
}

func newTestClassifier(t *testing.T, runtime Runtime) *Classifier {
	t.Helper()
	dir := t.TempDir()
	writeLabels(t, dir, testClassCount)
	logger, _ := test.NewNullLogger()
	c, err := NewClassifier(runtime, Config{
		ModelsDir:  dir,
		LabelsFile: "imagenet_class_index.json",
	}, logger, nil)
	require.NoError(t, err)
	return c
}

func lookup(t *testing.T, name string) model.Variant {
	t.Helper()
	v, err := models.Lookup(name)
	require.NoError(t, err)
	return v
}

func inputFor(v model.Variant) *tensor.Dense {
	shape := v.Input.Shape()
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float32, shape.TotalSize())))
}

func TestClassifierLoadReturnsInputSpec(t *testing.T) {
	c := newTestClassifier(t, newFakeRuntime())

	spec, err := c.Load(context.Background(), lookup(t, "inception"))
	require.NoError(t, err)
	assert.Equal(t, model.InputSpec{Width: 299, Height: 299, Channels: 3}, spec)

	active, pre, err := c.Active()
	require.NoError(t, err)
	assert.Equal(t, model.ModelNameInceptionV3, active.Name)
	assert.True(t, active.Input.Shape().Eq(pre.Shape()))
}

func TestClassifierClassifySortedAndDeterministic(t *testing.T) {
	c := newTestClassifier(t, newFakeRuntime())
	v := lookup(t, "mobilenet")
	_, err := c.Load(context.Background(), v)
	require.NoError(t, err)

	first, err := c.Classify(context.Background(), inputFor(v))
	require.NoError(t, err)
	require.Len(t, first, DefaultTopK)
	assert.Equal(t, "label_1", first[0].Label)
	assert.Equal(t, "label_3", first[1].Label)
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Probability, first[i].Probability)
	}
	// Ties keep output order: indices 4 and 5 both at 0.1.
	assert.Equal(t, 4, first[2].Index)
	assert.Equal(t, 5, first[3].Index)

	for i := 0; i < 5; i++ {
		again, err := c.Classify(context.Background(), inputFor(v))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassifierAppliesSoftmaxToLogits(t *testing.T) {
	c := newTestClassifier(t, newFakeRuntime())
	v := lookup(t, "inception")
	_, err := c.Load(context.Background(), v)
	require.NoError(t, err)

	predictions, err := c.Classify(context.Background(), inputFor(v))
	require.NoError(t, err)
	assert.Equal(t, "label_7", predictions[0].Label)
	for _, p := range predictions {
		assert.GreaterOrEqual(t, p.Probability, float32(0))
		assert.LessOrEqual(t, p.Probability, float32(1))
	}
}

func TestClassifierClassifyWithoutModel(t *testing.T) {
	c := newTestClassifier(t, newFakeRuntime())
	_, err := c.Classify(context.Background(), inputFor(lookup(t, "mobilenet")))
	assert.ErrorIs(t, err, ErrModelLoad)

	_, _, err = c.Active()
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestClassifierShapeMismatch(t *testing.T) {
	c := newTestClassifier(t, newFakeRuntime())
	_, err := c.Load(context.Background(), lookup(t, "inception"))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), inputFor(lookup(t, "mobilenet")))
	assert.ErrorIs(t, err, ErrInference)

	_, err = c.Classify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInference)
}

func TestClassifierRunFailure(t *testing.T) {
	runtime := newFakeRuntime()
	c := newTestClassifier(t, runtime)
	v := lookup(t, "resnet")
	_, err := c.Load(context.Background(), v)
	require.NoError(t, err)
	runtime.sessions[0].runErr = errors.New("kernel exploded")

	_, err = c.Classify(context.Background(), inputFor(v))
	assert.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "kernel exploded")
}

func TestClassifierNonFiniteOutput(t *testing.T) {
	for name, bad := range map[string]float32{"inf": math32.Inf(1), "nan": math32.NaN()} {
		t.Run(name, func(t *testing.T) {
			runtime := newFakeRuntime()
			c := newTestClassifier(t, runtime)
			v := lookup(t, "inception")
			_, err := c.Load(context.Background(), v)
			require.NoError(t, err)
			runtime.sessions[0].result = []float32{bad, 1, 2, 3, 4, 5, 6, 7}

			predictions, err := c.Classify(context.Background(), inputFor(v))
			assert.ErrorIs(t, err, ErrInference)
			assert.Empty(t, predictions)
		})
	}
}

func TestClassifierRejectsMismatchedPreprocessing(t *testing.T) {
	c := newTestClassifier(t, newFakeRuntime())
	v := lookup(t, "mobilenet")
	v.Preprocessing = func(model.InputSpec) *preprocess.ModelConfig {
		return preprocess.GetTFConfig("mobilenet_v2", 100, 100)
	}

	_, err := c.Load(context.Background(), v)
	assert.ErrorIs(t, err, ErrModelLoad)
	_, _, err = c.Active()
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestClassifierFailedLoadKeepsPreviousModel(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.openErr["resnet50.onnx"] = errors.New("corrupt weights")
	c := newTestClassifier(t, runtime)

	_, err := c.Load(context.Background(), lookup(t, "mobilenet"))
	require.NoError(t, err)

	_, err = c.Load(context.Background(), lookup(t, "resnet"))
	assert.ErrorIs(t, err, ErrModelLoad)

	active, _, err := c.Active()
	require.NoError(t, err)
	assert.Equal(t, model.ModelNameMobileNetV2, active.Name)
	require.Len(t, runtime.sessions, 1)
	assert.False(t, runtime.sessions[0].closed)

	_, err = c.Classify(context.Background(), inputFor(active))
	assert.NoError(t, err)
}

func TestClassifierOutputWidthMismatch(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.width = testClassCount + 1
	c := newTestClassifier(t, runtime)

	_, err := c.Load(context.Background(), lookup(t, "mobilenet"))
	assert.ErrorIs(t, err, ErrModelLoad)
	require.Len(t, runtime.sessions, 1)
	assert.True(t, runtime.sessions[0].closed)
}

func TestClassifierMissingLabels(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, err := NewClassifier(newFakeRuntime(), Config{ModelsDir: t.TempDir(), LabelsFile: "nope.json"}, logger, nil)
	require.NoError(t, err)

	_, err = c.Load(context.Background(), lookup(t, "mobilenet"))
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestClassifierCancelledLoadKeepsPreviousModel(t *testing.T) {
	runtime := newFakeRuntime()
	c := newTestClassifier(t, runtime)
	_, err := c.Load(context.Background(), lookup(t, "mobilenet"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Load(ctx, lookup(t, "inception"))
	assert.ErrorIs(t, err, context.Canceled)

	active, _, err := c.Active()
	require.NoError(t, err)
	assert.Equal(t, model.ModelNameMobileNetV2, active.Name)
	require.Len(t, runtime.sessions, 2)
	assert.True(t, runtime.sessions[1].closed)
}

func TestClassifierSwitchBackAndForth(t *testing.T) {
	runtime := newFakeRuntime()
	c := newTestClassifier(t, runtime)

	for _, name := range []string{"mobilenet", "resnet", "mobilenet", "inception", "mobilenet"} {
		v := lookup(t, name)
		_, err := c.Load(context.Background(), v)
		require.NoError(t, err, name)
		_, err = c.Classify(context.Background(), inputFor(v))
		require.NoError(t, err, name)
	}

	require.Len(t, runtime.sessions, 5)
	for _, s := range runtime.sessions[:4] {
		assert.True(t, s.closed)
	}
	assert.False(t, runtime.sessions[4].closed)

	require.NoError(t, c.Close())
	assert.True(t, runtime.sessions[4].closed)
}

func TestNewClassifierValidation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewClassifier(nil, Config{LabelsFile: "x"}, logger, nil)
	assert.Error(t, err)
	_, err = NewClassifier(newFakeRuntime(), Config{}, logger, nil)
	assert.Error(t, err)
	_, err = NewClassifier(newFakeRuntime(), Config{LabelsFile: "x", TopK: -1}, logger, nil)
	assert.Error(t, err)
}

func TestCheckInputShape(t *testing.T) {
	spec := model.InputSpec{Width: 224, Height: 224, Channels: 3}
	assert.NoError(t, checkInputShape([]int64{-1, 224, 224, 3}, spec))
	assert.NoError(t, checkInputShape([]int64{1, -1, -1, 3}, spec))
	assert.Error(t, checkInputShape([]int64{1, 3, 224, 224}, spec))
	assert.Error(t, checkInputShape([]int64{1, 299, 299, 3}, spec))
	assert.Error(t, checkInputShape([]int64{224, 224, 3}, spec))
}
