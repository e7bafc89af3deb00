// Package chat provides the chat command code.
package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/llava/foundation/logger"
	"github.com/ardanlabs/llava/sdk/chat"
	"github.com/ardanlabs/llava/sdk/llava"
	"github.com/ardanlabs/llava/sdk/tools/defaults"
	"github.com/ardanlabs/llava/sdk/tools/models"
	"github.com/google/uuid"
)

// Run executes the chat command.
func Run(build string) error {
	cfg, err := parseConfig(build)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	sessionID := uuid.NewString()

	traceIDFn := func(ctx context.Context) string {
		return sessionID
	}

	log := logger.New(os.Stderr, level, "LLAVA", traceIDFn)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, cfg); err != nil {
		log.Error(ctx, "chat", "ERROR", err)
		return err
	}

	return nil
}

type config struct {
	conf.Version
	Model struct {
		File          string `conf:"help:model file name or path"`
		ProjFile      string `conf:"help:mmproj projector file name or path"`
		ContextWindow int    `conf:"default:0,help:0 uses the model's context length"`
		NBatch        int    `conf:"default:2048"`
		MaxTokens     int    `conf:"default:512"`
	}
	Prompt struct {
		System      string
		UserPostfix string
	}
	Sampling struct {
		TopK int32   `conf:"default:40"`
		TopP float32 `conf:"default:0.9"`
		Temp float32 `conf:"default:0.8"`
	}
	ModelsPath   string
	LibPath      string
	RequireImage bool   `conf:"default:true,help:require an image before the first text message"`
	Warmup       bool   `conf:"default:true,help:load the model and evaluate the system prompt at startup"`
	LlamaLog     int    `conf:"default:1,help:1 silent 2 normal"`
	LogLevel     string `conf:"default:INFO"`
}

func parseConfig(build string) (config, error) {
	cfg := config{
		Version: conf.Version{
			Build: build,
			Desc:  "Llava",
		},
	}

	cfg.Model.File = defaults.ModelFile
	cfg.Model.ProjFile = defaults.ProjFile

	const prefix = "LLAVA"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
		}
		return config{}, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.LlamaLog < int(llava.LogSilent) || cfg.LlamaLog > int(llava.LogNormal) {
		return config{}, fmt.Errorf("parsing config: invalid llama log level %d, want silent(1) or normal(2)", cfg.LlamaLog)
	}

	return cfg, nil
}

func run(ctx context.Context, log *logger.Logger, cfg config) error {
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Info(ctx, "startup", "config", out)

	log.BuildInfo(ctx)

	// -------------------------------------------------------------------------
	// Libraries

	libPath := defaults.LibsDir(cfg.LibPath)

	log.Info(ctx, "startup", "status", "loading llama.cpp", "lib-path", libPath)

	if err := llava.Init(libPath, llava.LogLevel(cfg.LlamaLog)); err != nil {
		return fmt.Errorf("unable to init llama.cpp, run the libs command first: %w", err)
	}
	defer llava.Shutdown()

	// -------------------------------------------------------------------------
	// Models

	mp, err := models.New(cfg.ModelsPath).Resolve(cfg.Model.File, cfg.Model.ProjFile)
	if err != nil {
		return fmt.Errorf("unable to locate model files, run the pull command first: %w", err)
	}

	log.Info(ctx, "startup", "model-file", mp.ModelFile, "proj-file", mp.ProjFile)

	engineCfg := llava.Config{
		ModelFile:     mp.ModelFile,
		ProjFile:      mp.ProjFile,
		SystemPrompt:  cfg.Prompt.System,
		UserPostfix:   cfg.Prompt.UserPostfix,
		ContextWindow: cfg.Model.ContextWindow,
		NBatch:        cfg.Model.NBatch,
		MaxTokens:     cfg.Model.MaxTokens,
		Params: llava.Params{
			TopK: cfg.Sampling.TopK,
			TopP: cfg.Sampling.TopP,
			Temp: cfg.Sampling.Temp,
		},
		Log: log.Debug,
	}

	// -------------------------------------------------------------------------
	// Controller

	ctrl, err := chat.New(chat.Config{
		NewEngine: func(ctx context.Context) (chat.Engine, error) {
			return llava.New(ctx, engineCfg)
		},
		Log: log.Info,
	})
	if err != nil {
		return fmt.Errorf("unable to create controller: %w", err)
	}

	defer func() {
		log.Info(ctx, "shutdown", "status", "closing engine")
		if err := ctrl.Close(); err != nil {
			log.Error(ctx, "shutdown", "ERROR", err)
		}
	}()

	if cfg.Warmup {
		log.Info(ctx, "startup", "status", "warming up model")

		// A failure is already recorded as a notice and retried on first use.
		if err := ctrl.Warmup(ctx); err != nil {
			log.Warn(ctx, "startup", "status", "warmup failed", "ERROR", err)
		}
	}

	// -------------------------------------------------------------------------
	// Session

	repl := REPL{
		Ctrl:         ctrl,
		In:           os.Stdin,
		Out:          os.Stdout,
		RequireImage: cfg.RequireImage,
	}

	return repl.Run(ctx)
}
