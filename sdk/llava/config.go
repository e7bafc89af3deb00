package llava

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// Prompt defaults for llava models trained on the Human/Assistant format.
const (
	DefaultSystemPrompt = "A chat between a curious human and an artificial intelligence assistant. " +
		"The assistant gives helpful, detailed, and polite answers to the human's questions."
	DefaultUserPostfix = "###Assistant:"
)

const (
	defContextWindow = 4 * 1024
	defNBatch        = 2 * 1024
	defMaxTokens     = 512
)

// Config represents the engine configuration. These values if configured
// incorrectly can cause the system to panic.
//
// ContextWindow when set to 0 will use the model's context length. If the
// model's context length can't be identified, a context window of 4k is used.
//
// MaxTokens bounds the number of tokens produced per turn. When set to 0 the
// default value of 512 is used.
type Config struct {
	ModelFile     string
	ProjFile      string
	SystemPrompt  string
	UserPostfix   string
	ContextWindow int
	NBatch        int
	MaxTokens     int
	Params        Params
	Log           Logger
}

func (cfg Config) validate() error {
	var errs []error

	if cfg.ModelFile == "" {
		errs = append(errs, errors.New("model file is required"))
	} else if _, err := os.Stat(cfg.ModelFile); err != nil {
		errs = append(errs, fmt.Errorf("model file: %w", err))
	}

	if cfg.ProjFile == "" {
		errs = append(errs, errors.New("projection file is required"))
	} else if _, err := os.Stat(cfg.ProjFile); err != nil {
		errs = append(errs, fmt.Errorf("projection file: %w", err))
	}

	return errors.Join(errs...)
}

func withDefaults(cfg Config) Config {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	if cfg.UserPostfix == "" {
		cfg.UserPostfix = DefaultUserPostfix
	}

	if cfg.NBatch <= 0 {
		cfg.NBatch = defNBatch
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defMaxTokens
	}

	if cfg.Log == nil {
		cfg.Log = func(ctx context.Context, msg string, args ...any) {}
	}

	cfg.Params = adjustParams(cfg.Params)

	return cfg
}

func adjustConfig(cfg Config, model llama.Model) Config {
	v, found := searchModelMeta(model, "context_length")
	cfg.ContextWindow = contextWindow(cfg.ContextWindow, v, found)

	if cfg.NBatch > cfg.ContextWindow {
		cfg.NBatch = cfg.ContextWindow
	}

	return cfg
}

// contextWindow picks the configured value, then the model's context length,
// then the default.
func contextWindow(configured int, meta string, found bool) int {
	if configured > 0 {
		return configured
	}

	if found {
		if n, err := strconv.Atoi(strings.TrimSpace(meta)); err == nil && n > 0 {
			return n
		}
	}

	return defContextWindow
}

func modelCtxParams(cfg Config) llama.ContextParams {
	ctxParams := llama.ContextDefaultParams()

	ctxParams.NCtx = uint32(cfg.ContextWindow)
	ctxParams.NBatch = uint32(cfg.NBatch)
	ctxParams.NUbatch = uint32(cfg.NBatch)

	return ctxParams
}

func searchModelMeta(model llama.Model, find string) (string, bool) {
	count := llama.ModelMetaCount(model)

	for i := range count {
		key, ok := llama.ModelMetaKeyByIndex(model, i)
		if !ok {
			continue
		}

		if strings.HasSuffix(key, find) {
			value, ok := llama.ModelMetaValStrByIndex(model, i)
			if !ok {
				continue
			}

			return value, true
		}
	}

	return "", false
}
