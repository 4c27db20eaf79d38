package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/visiondrop/images"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// mockClassifier labels every image with the active model's name.
type mockClassifier struct {
	active  *model.Variant
	pre     *preprocess.Preprocessor
	loadErr map[model.Name]error
	calls   int
}

func (m *mockClassifier) Load(_ context.Context, v model.Variant) (model.InputSpec, error) {
	if err := m.loadErr[v.Name]; err != nil {
		return model.InputSpec{}, err
	}
	pre, err := v.NewPreprocessor()
	if err != nil {
		return model.InputSpec{}, err
	}
	m.active, m.pre = &v, pre
	return v.Input, nil
}

func (m *mockClassifier) Classify(_ context.Context, input *tensor.Dense) ([]model.Prediction, error) {
	m.calls++
	if !m.active.Input.Shape().Eq(input.Shape()) {
		return nil, errors.New("shape mismatch")
	}
	return []model.Prediction{{Label: string(m.active.Name), Probability: 0.9}}, nil
}

func (m *mockClassifier) Active() (model.Variant, *preprocess.Preprocessor, error) {
	if m.active == nil {
		return model.Variant{}, nil, errors.New("no model loaded")
	}
	return *m.active, m.pre, nil
}

func writeImages(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 40+i, 30))
		for p := range img.Pix {
			img.Pix[p] = uint8(p * (i + 1))
		}
		img.Set(0, 0, color.RGBA{255, 0, 0, 255})
		path := filepath.Join(dir, "img"+string(rune('a'+i))+".png")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
		paths = append(paths, path)
	}
	return paths
}

func newSuite(t *testing.T, paths []string) (*Suite, *mockClassifier) {
	t.Helper()
	pipeline, err := images.NewPipeline(32)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	classifier := &mockClassifier{loadErr: map[model.Name]error{}}
	suite, err := NewSuite(classifier, pipeline, paths, log)
	require.NoError(t, err)
	return suite, classifier
}

func TestNewSuiteNeedsImages(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewSuite(&mockClassifier{}, nil, nil, log)
	assert.Error(t, err)
}

func TestDefaultScenarios(t *testing.T) {
	scenarios := DefaultScenarios(10, 2)
	require.Len(t, scenarios, 3)
	assert.Equal(t, model.ModelNameMobileNetV2, scenarios[0].Model)
	assert.Equal(t, model.ModelNameResNet50, scenarios[1].Model)
	assert.Equal(t, model.ModelNameInceptionV3, scenarios[2].Model)
	for _, s := range scenarios {
		assert.Equal(t, 10, s.Iterations)
		assert.Equal(t, 2, s.WarmupRuns)
	}
}

func TestRunScenario(t *testing.T) {
	paths := writeImages(t, 2)
	suite, classifier := newSuite(t, paths)

	m, err := suite.RunScenario(context.Background(), Scenario{
		Name: "inception", Model: model.ModelNameInceptionV3, Iterations: 3, WarmupRuns: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 1+3*2, classifier.calls)
	assert.Equal(t, []string{"InceptionV3", "InceptionV3"}, m.TopLabels)
	assert.Zero(t, m.ErrorRate)
	assert.Greater(t, m.ImagesPerSecond, 0.0)
	assert.Len(t, suite.Results(), 1)
}

func TestRunScenarioCountsFailures(t *testing.T) {
	paths := writeImages(t, 1)
	corrupt := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o644))
	suite, _ := newSuite(t, append(paths, corrupt))

	m, err := suite.RunScenario(context.Background(), Scenario{
		Name: "mobilenet", Model: model.ModelNameMobileNetV2, Iterations: 2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.ErrorRate, 1e-9)
	assert.Len(t, m.TopLabels, 1)
}

func TestRunScenarioRejectsBadInput(t *testing.T) {
	suite, _ := newSuite(t, writeImages(t, 1))

	_, err := suite.RunScenario(context.Background(), Scenario{Name: "x", Model: "alexnet", Iterations: 1})
	assert.Error(t, err)

	_, err = suite.RunScenario(context.Background(), Scenario{Name: "x", Model: model.ModelNameResNet50})
	assert.Error(t, err)
}

func TestRunAllSkipsFailedLoads(t *testing.T) {
	suite, classifier := newSuite(t, writeImages(t, 1))
	classifier.loadErr[model.ModelNameResNet50] = errors.New("missing weights")

	results := suite.RunAll(context.Background(), DefaultScenarios(1, 0))
	require.Len(t, results, 2)
	assert.Equal(t, model.ModelNameMobileNetV2, results[0].Scenario.Model)
	assert.Equal(t, model.ModelNameInceptionV3, results[1].Scenario.Model)
}

func TestSaveResults(t *testing.T) {
	suite, _ := newSuite(t, writeImages(t, 1))
	_, err := suite.RunScenario(context.Background(), Scenario{Name: "m", Model: model.ModelNameMobileNetV2, Iterations: 1})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "reports", "bench.json")
	require.NoError(t, suite.SaveResults(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "m", decoded[0].Scenario.Name)
}
