package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// LibraryPathEnv overrides the shared library search when set.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// DefaultLibraryNames returns the shared library file names tried for the
// current platform.
func DefaultLibraryNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"onnxruntime.dll"}
	case "darwin":
		return []string{"libonnxruntime.dylib"}
	default:
		if runtime.GOARCH == "arm64" {
			return []string{"libonnxruntime.so", "onnxruntime_arm64.so"}
		}
		return []string{"libonnxruntime.so", "onnxruntime.so"}
	}
}

// GetSharedLibPath resolves the onnxruntime shared library.
//
// The configured path wins, then the ONNXRUNTIME_SHARED_LIBRARY_PATH
// environment variable, then the platform library names in ./third_party and
// the working directory.
//
// Arguments:
//   - configured: The path from configuration, may be empty.
//
// Returns:
//   - string: The path to the shared library.
//   - error: An error if no candidate exists.
func GetSharedLibPath(configured string) (string, error) {
	if configured != "" {
		return existing(configured)
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		return existing(env)
	}

	var tried []string
	for _, dir := range []string{"third_party", "."} {
		for _, name := range DefaultLibraryNames() {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			tried = append(tried, candidate)
		}
	}
	return "", fmt.Errorf("ONNX Runtime library not found, tried %v; set onnxruntime.library_path or %s", tried, LibraryPathEnv)
}

func existing(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("ONNX Runtime library not found at %s: %w", path, err)
	}
	return path, nil
}
