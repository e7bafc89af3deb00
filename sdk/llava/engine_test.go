package llava_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/llava/sdk/chat"
	"github.com/ardanlabs/llava/sdk/llava"
	"github.com/ardanlabs/llava/sdk/llava/observ/metrics"
)

var (
	modelFile = os.Getenv("LLAVA_TEST_MODEL")
	projFile  = os.Getenv("LLAVA_TEST_PROJ")
	libPath   = os.Getenv("LLAVA_LIB_PATH")
	imageFile = os.Getenv("LLAVA_TEST_IMAGE")
)

func setup(t *testing.T) *chat.Controller {
	t.Helper()

	if modelFile == "" || projFile == "" || libPath == "" {
		t.Skip("LLAVA_TEST_MODEL, LLAVA_TEST_PROJ and LLAVA_LIB_PATH must be set")
	}

	if err := llava.Init(libPath, llava.LogSilent); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg := llava.Config{
		ModelFile: modelFile,
		ProjFile:  projFile,
		MaxTokens: 64,
	}

	c, err := chat.New(chat.Config{
		NewEngine: func(ctx context.Context) (chat.Engine, error) {
			return llava.New(ctx, cfg)
		},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	t.Cleanup(func() {
		c.Close()
	})

	return c
}

func Test_TextTurn(t *testing.T) {
	c := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := c.Warmup(ctx); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	reply, err := c.Submit(ctx, "What is the capital of France?", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if strings.Contains(reply.Text, chat.StopMarker) {
		t.Errorf("reply contains stop marker: %q", reply.Text)
	}

	snap := c.Snapshot()
	if snap.Transcript != chat.Serialize(snap.Turns) {
		t.Errorf("transcript does not match turns: %q", snap.Transcript)
	}

	if metrics.Snapshot().ModelLoad.Count == 0 {
		t.Error("expected model load time to be recorded")
	}
}

func Test_ImageTurn(t *testing.T) {
	if imageFile == "" {
		t.Skip("LLAVA_TEST_IMAGE must be set")
	}

	c := setup(t)

	img, err := os.ReadFile(imageFile)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := c.Submit(ctx, "What is in this picture?", img); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	if _, err := c.Submit(ctx, "What colors do you see?", nil); err != nil {
		t.Fatalf("submit follow up: %v", err)
	}

	if !c.HasImage() {
		t.Error("expected image context to be retained")
	}

	if metrics.Snapshot().ImageEmbed.Count < 2 {
		t.Error("expected the image to be embedded for both turns")
	}
}

func Test_NewRequiresInit(t *testing.T) {
	if libPath != "" {
		t.Skip("LLAVA_LIB_PATH is set, the libraries may already be loaded")
	}

	cfg := llava.Config{
		ModelFile:     "model.gguf",
		ProjFile:      "mmproj.gguf",
		ContextWindow: 2048,
		NBatch:        512,
		MaxTokens:     64,
	}

	_, err := llava.New(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "Init()") {
		t.Errorf("got %v, want an init error", err)
	}
}

func Test_NewRequiresFiles(t *testing.T) {
	if libPath == "" {
		t.Skip("LLAVA_LIB_PATH must be set")
	}

	if err := llava.Init(libPath, llava.LogSilent); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := llava.New(context.Background(), llava.Config{ModelFile: "missing.gguf", ProjFile: "missing.gguf"})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want a not exist error", err)
	}
}
