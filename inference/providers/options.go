package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// NewSessionOptions creates session options for cfg. The caller owns the
// returned options and must Destroy them once the session is created.
//
// Order of operations:
//  1. Threading: intra-op and inter-op parallelism.
//  2. Graph optimization: extended rewrites such as fusion and constant folding.
//  3. Execution provider: CoreML, CUDA or OpenVINO when configured.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The configured options.
//   - error: An error if an option or provider cannot be applied.
func NewSessionOptions(cfg Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if err := applyOptions(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func applyOptions(options *ort.SessionOptions, cfg Config) error {
	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fmt.Errorf("error setting graph optimization level: %w", err)
	}

	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return err
	}

	switch backend {
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(cfg.CoreML.Flags()); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	case CUDAProviderBackend:
		cuda, err := cfg.CUDA.ToNativeProviderOptions()
		if err != nil {
			return fmt.Errorf("error converting CUDA options: %w", err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("error enabling CUDA: %w", err)
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(cfg.OpenVINO.ToMap()); err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	}
	return nil
}
