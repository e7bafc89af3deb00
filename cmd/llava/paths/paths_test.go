package paths_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/llava/cmd/llava/paths"
)

func Test_Run(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LLAVA_MODELS", dir)
	t.Setenv("LLAVA_LIB_PATH", filepath.Join(dir, "libs"))

	var buf bytes.Buffer
	if err := paths.Run(&buf); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(buf.String(), "No models found") {
		t.Errorf("expected empty listing, got:\n%s", buf.String())
	}

	if err := os.WriteFile(filepath.Join(dir, "mmproj-model-f16.gguf"), []byte("gguf"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf.Reset()
	if err := paths.Run(&buf); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ModelPath: " + dir, "mmproj-model-f16.gguf", "mmproj"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
