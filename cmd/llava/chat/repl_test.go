package chat

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/llava/sdk/chat"
	"github.com/ardanlabs/llava/sdk/chat/chattest"
)

func newREPL(t *testing.T, eng *chattest.Engine, input string, requireImage bool) (*REPL, *bytes.Buffer) {
	t.Helper()

	f := chattest.Factory{Engine: eng}

	ctrl, err := chat.New(chat.Config{NewEngine: f.New})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })

	var out bytes.Buffer

	r := REPL{
		Ctrl:         ctrl,
		In:           strings.NewReader(input),
		Out:          &out,
		RequireImage: requireImage,
		ReadFile: func(name string) ([]byte, error) {
			if name == "cat.jpg" {
				return []byte("jpeg"), nil
			}
			return nil, os.ErrNotExist
		},
	}

	return &r, &out
}

func Test_Session(t *testing.T) {
	eng := chattest.Engine{
		Replies: [][]string{{"A cat", ".###"}, {"Orange."}},
	}

	input := strings.Join([]string{
		"hello",
		"/image cat.jpg what is this?",
		"what color?",
		"/stats",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n")

	r, out := newREPL(t, &eng, input, true)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()

	for _, want := range []string{
		"attach an image first with /image <file>",
		"attached cat.jpg (4 bytes)",
		"(embedding image)",
		"assistant> A cat.\n",
		"assistant> Orange.\n",
		"turns        : 4",
		`unknown command "/bogus"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if n := len(eng.Transcripts()); n != 2 {
		t.Errorf("got %d generations, want 2", n)
	}

	if imgs := eng.Images(); string(imgs[0]) != "jpeg" || string(imgs[1]) != "jpeg" {
		t.Errorf("expected the image for both turns, got %q", imgs)
	}
}

func Test_PendingImage(t *testing.T) {
	eng := chattest.Engine{
		Replies: [][]string{{"A cat."}},
	}

	input := strings.Join([]string{
		"/image missing.jpg",
		"/image",
		"/image cat.jpg",
		"",
		"",
	}, "\n")

	r, out := newREPL(t, &eng, input, true)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()

	if !strings.Contains(got, "error: "+os.ErrNotExist.Error()) {
		t.Errorf("expected read error:\n%s", got)
	}

	if !strings.Contains(got, "usage: /image <file> [message]") {
		t.Errorf("expected usage:\n%s", got)
	}

	if diff := eng.Transcripts(); len(diff) != 1 || diff[0] != "###Human:  " {
		t.Errorf("expected one empty image turn, got %q", diff)
	}
}

func Test_Reset(t *testing.T) {
	eng := chattest.Engine{
		Replies: [][]string{{"A cat."}, {"Hi."}},
	}

	input := strings.Join([]string{
		"/image cat.jpg describe",
		"/reset",
		"follow up",
	}, "\n")

	r, out := newREPL(t, &eng, input, true)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()

	for _, want := range []string{"(loading model)", "conversation cleared", "attach an image first"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if r.Ctrl.HasImage() {
		t.Error("expected image context to be cleared")
	}
}

func Test_TextOnly(t *testing.T) {
	eng := chattest.Engine{
		Replies: [][]string{{"Hello there."}},
	}

	r, out := newREPL(t, &eng, "hi\n", false)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(out.String(), "assistant> Hello there.\n") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func Test_Notice(t *testing.T) {
	eng := chattest.Engine{}

	f := chattest.Factory{Engine: &eng, Errs: []error{errors.New("no such file")}}

	ctrl, err := chat.New(chat.Config{NewEngine: f.New})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	defer ctrl.Close()

	var out bytes.Buffer

	r := REPL{
		Ctrl: ctrl,
		In:   strings.NewReader("hi\n"),
		Out:  &out,
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(out.String(), "! Model loading failed: no such file") {
		t.Errorf("expected notice in output:\n%s", out.String())
	}
}
