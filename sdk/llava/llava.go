// Package llava provides a multimodal inference engine for llava style models
// using llamacpp and mtmd via yzma. An Engine implements chat.Engine.
package llava

import (
	"context"
	"fmt"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
	"github.com/hybridgroup/yzma/pkg/mtmd"
)

// LogLevel represents the logging level of the llamacpp libraries.
type LogLevel int

// Set of logging levels supported by llamacpp.
const (
	LogSilent LogLevel = iota + 1
	LogNormal
)

// Logger provides a function for logging messages from different APIs.
type Logger func(ctx context.Context, msg string, args ...any)

var (
	libraryLocation string
	initOnce        sync.Once
	initErr         error
)

// Init loads the llamacpp and mtmd libraries found at libPath. It must be
// called once before New. Later calls return the result of the first call.
func Init(libPath string, logLevel LogLevel) error {
	initOnce.Do(func() {
		if err := llama.Load(libPath); err != nil {
			initErr = fmt.Errorf("init: unable to load library: %w", err)
			return
		}

		if err := mtmd.Load(libPath); err != nil {
			initErr = fmt.Errorf("init: unable to load mtmd library: %w", err)
			return
		}

		libraryLocation = libPath

		llama.Init()

		switch logLevel {
		case LogSilent:
			llama.LogSet(llama.LogSilent())
			mtmd.LogSet(llama.LogSilent())
		default:
			llama.LogSet(llama.LogNormal)
			mtmd.LogSet(llama.LogNormal)
		}
	})

	return initErr
}

// Shutdown releases the llamacpp backend. No engine can be used afterwards.
func Shutdown() {
	if libraryLocation == "" {
		return
	}

	llama.BackendFree()
}
