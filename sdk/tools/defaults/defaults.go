// Package defaults provides default values for the cli tooling.
package defaults

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hybridgroup/yzma/pkg/download"
)

var (
	basePath  = ".llava"
	libsPath  = "libraries"
	modelPath = "models"
)

// Default model files for the llava-ko danube model.
const (
	ModelFile = "danube-ko-1.8B-base-Q8_0.gguf"
	ProjFile  = "mmproj-model-f16.gguf"
)

// BaseDir is the default base folder location for llava files. It will check
// the LLAVA_BASE_PATH env var first and then default to the home directory if
// one can be identified. If an override is provided, it takes precedence.
func BaseDir(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("LLAVA_BASE_PATH"); v != "" {
		return v
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Sprintf("./%s", basePath)
	}

	return filepath.Join(homeDir, basePath)
}

// LibsDir returns the default location for the libraries folder. It will check
// the LLAVA_LIB_PATH env var first and then default to the libraries folder
// under the base folder.
func LibsDir(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("LLAVA_LIB_PATH"); v != "" {
		return v
	}

	return filepath.Join(BaseDir(""), libsPath)
}

// ModelsDir returns the default location for the models folder. It will check
// the LLAVA_MODELS env var first and then default to the models folder under
// the base folder.
func ModelsDir(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("LLAVA_MODELS"); v != "" {
		return v
	}

	return filepath.Join(BaseDir(""), modelPath)
}

// Processor will check the LLAVA_PROCESSOR env var first and check it's value
// against the proper set of processor values (cpu, cuda, metal, vulkan). If
// that variable is not set, then cpu is used as the default.
func Processor(override string) (download.Processor, error) {
	if override != "" {
		return download.ParseProcessor(override)
	}

	if v := os.Getenv("LLAVA_PROCESSOR"); v != "" {
		return download.ParseProcessor(v)
	}

	return download.CPU, nil
}
