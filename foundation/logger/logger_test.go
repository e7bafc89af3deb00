package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ardanlabs/llava/foundation/logger"
)

func Test_Fields(t *testing.T) {
	var buf bytes.Buffer
	traceID := func(context.Context) string { return "abc123" }

	log := logger.New(&buf, logger.LevelInfo, "LLAVA", traceID)
	log.Info(context.Background(), "submit", "phase", "idle")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unable to decode log line %q: %v", buf.String(), err)
	}

	want := map[string]string{
		"msg":      "submit",
		"service":  "LLAVA",
		"phase":    "idle",
		"trace_id": "abc123",
	}

	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s: got %v, want %v", k, entry[k], v)
		}
	}

	if f, _ := entry["file"].(string); !strings.HasPrefix(f, "logger_test.go:") {
		t.Errorf("expected source file of the caller, got %q", f)
	}
}

func Test_CallerPerLevel(t *testing.T) {
	var buf bytes.Buffer

	log := logger.New(&buf, logger.LevelDebug, "LLAVA", nil)
	ctx := context.Background()

	log.Debug(ctx, "debug")
	log.Info(ctx, "info")
	log.Warn(ctx, "warn")
	log.Error(ctx, "error")
	log.BuildInfo(ctx)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d log lines, want 5:\n%s", len(lines), buf.String())
	}

	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("unable to decode log line %q: %v", line, err)
		}

		if f, _ := entry["file"].(string); !strings.HasPrefix(f, "logger_test.go:") {
			t.Errorf("%v: expected source file of the caller, got %q", entry["msg"], f)
		}
	}
}

func Test_MinLevel(t *testing.T) {
	var buf bytes.Buffer

	log := logger.New(&buf, logger.LevelWarn, "LLAVA", nil)
	log.Info(context.Background(), "dropped")
	log.Debug(context.Background(), "dropped")

	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn to be logged, got %q", buf.String())
	}

	log.Warn(context.Background(), "kept")
	if !strings.Contains(buf.String(), `"msg":"kept"`) {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func Test_Events(t *testing.T) {
	var buf bytes.Buffer
	var got []logger.Record

	events := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			got = append(got, r)
		},
	}

	log := logger.NewWithEvents(&buf, logger.LevelInfo, "LLAVA", nil, events)
	log.Info(context.Background(), "ignored")
	log.Error(context.Background(), "model-load", "ERROR", "missing file")

	if len(got) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(got))
	}

	if got[0].Message != "model-load" || got[0].Attributes["ERROR"] != "missing file" {
		t.Errorf("unexpected record: %#v", got[0])
	}
}

func Test_ParseLevel(t *testing.T) {
	tt := map[string]logger.Level{
		"debug": logger.LevelDebug,
		"":      logger.LevelInfo,
		"INFO":  logger.LevelInfo,
		"warn":  logger.LevelWarn,
		"error": logger.LevelError,
	}

	for name, want := range tt {
		got, err := logger.ParseLevel(name)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", name, err)
			continue
		}

		if got != want {
			t.Errorf("%q: got %v, want %v", name, got, want)
		}
	}

	if _, err := logger.ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
