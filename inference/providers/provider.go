// Package providers - ONNX Runtime execution provider selection and session options.
package providers

import (
	"fmt"
	"strings"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Backends lists every supported backend.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CoreMLProviderBackend,
	CUDAProviderBackend,
	OpenVINOProviderBackend,
}

// ParseBackend resolves a backend name case-insensitively. An empty name is
// the CPU backend.
func ParseBackend(name string) (ProviderBackend, error) {
	key := ProviderBackend(strings.ToLower(strings.TrimSpace(name)))
	if key == "" {
		return CPUProviderBackend, nil
	}
	for _, b := range Backends {
		if b == key {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported execution provider %q", name)
}

// Config selects the ONNX Runtime library and how sessions execute.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty searches the defaults.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Backend specifies the execution provider.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// IntraOpThreads sets threads for parallelizing ops. Zero lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads sets threads for parallelizing independent ops. Zero lets the runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// CoreML holds options used when Backend is coreml.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// CUDA holds options used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// OpenVINO holds options used when Backend is openvino.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns a CPU configuration with runtime chosen thread counts.
func DefaultConfig() Config {
	return Config{Backend: CPUProviderBackend}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return fmt.Errorf("thread counts must not be negative, got intra=%d inter=%d", c.IntraOpThreads, c.InterOpThreads)
	}
	return nil
}
