package libs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_New(t *testing.T) {
	dir := t.TempDir()

	lib, err := New(dir, "cpu", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if lib.LibsPath() != dir {
		t.Errorf("got path %q, want %q", lib.LibsPath(), dir)
	}

	if _, err := New(dir, "abacus", false); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("got %v, want ErrInvalidArguments", err)
	}
}

func Test_VersionFile(t *testing.T) {
	dir := t.TempDir()

	lib, err := New(dir, "cpu", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := lib.InstalledVersion(); err == nil {
		t.Fatal("expected an error without a version file")
	}

	want := VersionTag{Version: "b7100", Processor: "cpu"}
	if err := writeVersionFile(dir, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := lib.InstalledVersion()
	if err != nil {
		t.Fatalf("installed version: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("version mismatch (-want +got):\n%s", diff)
	}
}

func Test_TagMatch(t *testing.T) {
	lib, err := New(t.TempDir(), "cpu", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	proc := fmt.Sprint(lib.Processor())

	tt := []struct {
		name string
		tag  VersionTag
		want bool
	}{
		{"current", VersionTag{Version: "b2", Latest: "b2", Processor: proc}, true},
		{"outdated", VersionTag{Version: "b1", Latest: "b2", Processor: proc}, false},
		{"other processor", VersionTag{Version: "b2", Latest: "b2", Processor: proc + "-other"}, false},
		{"not installed", VersionTag{Latest: "b2"}, false},
	}

	for _, tc := range tt {
		if got := isTagMatch(tc.tag, lib); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func Test_SwapTempForLib(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, tempFolder)

	if err := os.MkdirAll(temp, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files := map[string]string{
		filepath.Join(dir, "libllama.so.old"): "old",
		filepath.Join(temp, "libllama.so"):    "new",
		filepath.Join(temp, "libmtmd.so"):     "new",
	}

	for f, content := range files {
		if err := os.WriteFile(f, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	if err := swapTempForLib(dir, temp); err != nil {
		t.Fatalf("swap: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}

	if diff := cmp.Diff([]string{"libllama.so", "libmtmd.so"}, got); diff != "" {
		t.Errorf("library files mismatch (-want +got):\n%s", diff)
	}
}
