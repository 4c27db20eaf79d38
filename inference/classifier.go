package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/nvr-ai/visiondrop/profiler"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

// DefaultTopK is the number of predictions returned per image.
const DefaultTopK = 5

// Config locates model files and sets the decoding depth.
type Config struct {
	// ModelsDir holds the variant ONNX files.
	ModelsDir string
	// LabelsFile is the class index file, relative to ModelsDir unless absolute.
	LabelsFile string
	// TopK is the number of predictions returned per image.
	TopK int
}

// loaded is a model that passed validation and is ready to run.
type loaded struct {
	variant      model.Variant
	session      Session
	classes      *model.OutputClassSet
	preprocessor *preprocess.Preprocessor
}

// Classifier holds at most one loaded variant and classifies model tensors
// with it. All methods are safe for concurrent use; calls are serialized.
type Classifier struct {
	runtime  Runtime
	cfg      Config
	log      logrus.FieldLogger
	profiler *profiler.Profiler

	mu      sync.Mutex
	current *loaded
	labels  map[model.Family]*model.OutputClassSet
}

// NewClassifier creates a classifier with no model loaded.
//
// Arguments:
//   - runtime: Opens model sessions.
//   - cfg: Model locations and decoding depth.
//   - log: The logger for load and inference events.
//   - prof: Records load and inference timings, may be nil.
//
// Returns:
//   - *Classifier: The classifier.
//   - error: An error if the configuration is invalid.
func NewClassifier(runtime Runtime, cfg Config, log logrus.FieldLogger, prof *profiler.Profiler) (*Classifier, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("invalid top k %d", cfg.TopK)
	}
	if cfg.LabelsFile == "" {
		return nil, fmt.Errorf("labels file is required")
	}
	return &Classifier{
		runtime:  runtime,
		cfg:      cfg,
		log:      log,
		profiler: prof,
		labels:   make(map[model.Family]*model.OutputClassSet),
	}, nil
}

// Load makes variant the active model and returns its input spec.
//
// The new session is created and validated before the previous one is
// released, so on any failure the previously loaded model stays active.
//
// Arguments:
//   - ctx: A cancelled context discards the new session instead of activating it.
//   - variant: The model to load.
//
// Returns:
//   - model.InputSpec: The spatial input the model expects.
//   - error: An error wrapping ErrModelLoad, or ctx.Err().
func (c *Classifier) Load(ctx context.Context, variant model.Variant) (model.InputSpec, error) {
	done := c.profiler.StartOperation(profiler.OpModelLoad)
	defer done()

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithField("model", variant.Name)

	classes, err := c.classesLocked(variant.Family)
	if err != nil {
		return model.InputSpec{}, fmt.Errorf("%w: %s: %v", ErrModelLoad, variant.Name, err)
	}

	pre, err := variant.NewPreprocessor()
	if err == nil && !pre.Shape().Eq(variant.Input.Shape()) {
		err = fmt.Errorf("preprocessing produces %v, model expects %v", pre.Shape(), variant.Input.Shape())
	}
	if err != nil {
		return model.InputSpec{}, fmt.Errorf("%w: %s: %v", ErrModelLoad, variant.Name, err)
	}

	path := filepath.Join(c.cfg.ModelsDir, variant.File)
	session, err := c.runtime.Open(path, variant.Input)
	if err != nil {
		return model.InputSpec{}, fmt.Errorf("%w: %s: %v", ErrModelLoad, variant.Name, err)
	}

	width, err := outputWidth(session.Output().Shape)
	if err == nil && width != classes.Len() {
		err = fmt.Errorf("model outputs %d classes, label file has %d", width, classes.Len())
	}
	if err != nil {
		closeSession(log, session)
		return model.InputSpec{}, fmt.Errorf("%w: %s: %v", ErrModelLoad, variant.Name, err)
	}

	if err := ctx.Err(); err != nil {
		closeSession(log, session)
		return model.InputSpec{}, err
	}

	previous := c.current
	c.current = &loaded{
		variant:      variant,
		session:      session,
		classes:      classes,
		preprocessor: pre,
	}
	if previous != nil {
		closeSession(log.WithField("previous", previous.variant.Name), previous.session)
	}

	log.WithFields(logrus.Fields{
		"path":   path,
		"input":  session.Input(),
		"output": session.Output(),
	}).Info("Model loaded")

	return variant.Input, nil
}

// Classify runs the active model on a preprocessed batch of one image and
// returns the top predictions, sorted by probability descending.
//
// Arguments:
//   - ctx: Checked before the model runs.
//   - input: A tensor of the active model's input shape.
//
// Returns:
//   - []model.Prediction: At most TopK predictions.
//   - error: ErrModelLoad when no model is loaded, ErrInference on shape
//     mismatch or runtime failure, or ctx.Err().
func (c *Classifier) Classify(ctx context.Context, input *tensor.Dense) ([]model.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, fmt.Errorf("%w: no model loaded", ErrModelLoad)
	}
	if input == nil {
		return nil, fmt.Errorf("%w: no input tensor", ErrInference)
	}

	variant := c.current.variant
	expected := variant.Input.Shape()
	if !expected.Eq(input.Shape()) {
		return nil, fmt.Errorf("%w: input shape %v does not match %s input %v", ErrInference, input.Shape(), variant.Name, expected)
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: input tensor is %v, expected float32", ErrInference, input.Dtype())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := c.profiler.StartOperation(profiler.OpInference)
	output, err := c.current.session.Run(data)
	done()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInference, variant.Name, err)
	}

	predictions, err := variant.Decode(output, c.current.classes, c.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInference, variant.Name, err)
	}
	return predictions, nil
}

// Active returns the loaded variant and its preprocessor.
//
// Returns:
//   - model.Variant: The active model.
//   - *preprocess.Preprocessor: Produces tensors for the active model.
//   - error: ErrModelLoad if nothing is loaded.
func (c *Classifier) Active() (model.Variant, *preprocess.Preprocessor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return model.Variant{}, nil, fmt.Errorf("%w: no model loaded", ErrModelLoad)
	}
	return c.current.variant, c.current.preprocessor, nil
}

// Close releases the loaded session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	err := c.current.session.Close()
	c.current = nil
	return err
}

// classesLocked returns the label set for family, reading it on first use.
func (c *Classifier) classesLocked(family model.Family) (*model.OutputClassSet, error) {
	if set, ok := c.labels[family]; ok {
		return set, nil
	}
	if family != model.ModelFamilyImageNet {
		return nil, fmt.Errorf("no label file for family %q", family)
	}

	path := c.cfg.LabelsFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.cfg.ModelsDir, path)
	}
	set, err := model.LoadImageNetClassIndex(path)
	if err != nil {
		return nil, err
	}
	c.labels[family] = set
	return set, nil
}

func closeSession(log logrus.FieldLogger, session Session) {
	if err := session.Close(); err != nil {
		log.WithError(err).Warn("Failed to close session")
	}
}
