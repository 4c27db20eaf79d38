package inference

import (
	"fmt"
	"os"
	"sync"

	"github.com/nvr-ai/visiondrop/inference/providers"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var environmentMu sync.Mutex

// ORTRuntime opens sessions on the onnxruntime shared library.
type ORTRuntime struct {
	cfg providers.Config
	log logrus.FieldLogger
}

// NewORTRuntime loads the onnxruntime shared library and initializes its
// environment. The environment is process wide, so later calls reuse it.
//
// Arguments:
//   - cfg: The library path, execution provider and threading configuration.
//   - log: The logger for runtime events.
//
// Returns:
//   - *ORTRuntime: The runtime.
//   - error: An error if the library cannot be found or initialized.
func NewORTRuntime(cfg providers.Config, log logrus.FieldLogger) (*ORTRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	environmentMu.Lock()
	defer environmentMu.Unlock()

	if !ort.IsInitialized() {
		libPath, err := providers.GetSharedLibPath(cfg.LibraryPath)
		if err != nil {
			return nil, err
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("error initializing ORT environment: %w", err)
		}
		log.WithFields(logrus.Fields{
			"library": libPath,
			"backend": cfg.Backend,
		}).Info("ONNX Runtime initialized")
	}

	return &ORTRuntime{cfg: cfg, log: log}, nil
}

// Open creates a session for the model at path with pre-allocated input and
// output tensors.
//
// Order of operations:
//  1. IO discovery: reads the declared input and output of the graph.
//  2. Validation: the input must be NHWC and agree with spec, the output must
//     be a single (batch, classes) vector.
//  3. Tensor allocation: fixed-shape buffers bound to the session.
//  4. Session creation with the configured execution provider.
//
// Arguments:
//   - path: The ONNX model file.
//   - spec: The input spec the tensors are allocated for.
//
// Returns:
//   - Session: The loaded session.
//   - error: An error if the model is missing, incompatible or fails to load.
func (r *ORTRuntime) Open(path string, spec model.InputSpec) (Session, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model IO info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected exactly one model input, found %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model declares no outputs")
	}

	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("model input %s is %v, expected float32", in.Name, in.DataType)
	}
	if err := checkInputShape([]int64(in.Dimensions), spec); err != nil {
		return nil, err
	}
	width, err := outputWidth([]int64(out.Dimensions))
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, int64(spec.Height), int64(spec.Width), int64(spec.Channels)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := providers.NewSessionOptions(r.cfg)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		path,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &ortSession{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		inInfo:  TensorInfo{Name: in.Name, Shape: []int64(in.Dimensions)},
		outInfo: TensorInfo{Name: out.Name, Shape: []int64(out.Dimensions)},
	}, nil
}

// Close tears down the process wide environment.
func (r *ORTRuntime) Close() error {
	environmentMu.Lock()
	defer environmentMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ortSession represents a model session from the onnxruntime.
type ortSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inInfo  TensorInfo
	outInfo TensorInfo
}

func (s *ortSession) Input() TensorInfo  { return s.inInfo }
func (s *ortSession) Output() TensorInfo { return s.outInfo }

// Run copies input into the bound input tensor, runs the graph and returns a
// copy of the output vector.
func (s *ortSession) Run(input []float32) ([]float32, error) {
	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, session expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, err
	}

	out := s.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the resources associated with the session.
func (s *ortSession) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if err != nil {
		return fmt.Errorf("error destroying ORT session: %w", err)
	}
	return nil
}
