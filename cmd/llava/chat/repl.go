package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ardanlabs/llava/sdk/chat"
	"github.com/ardanlabs/llava/sdk/llava/observ/metrics"
)

// REPL drives a controller from line based input. Lines starting with a slash
// are commands, everything else is sent as a message.
type REPL struct {
	Ctrl         *chat.Controller
	In           io.Reader
	Out          io.Writer
	RequireImage bool

	// ReadFile reads image files. When nil os.ReadFile is used.
	ReadFile func(name string) ([]byte, error)

	streaming bool
}

// Run reads lines until the input ends, /quit is entered or the context is
// canceled.
func (r *REPL) Run(ctx context.Context) error {
	if r.ReadFile == nil {
		r.ReadFile = os.ReadFile
	}

	for _, t := range r.Ctrl.Snapshot().Turns {
		if t.Notice {
			fmt.Fprintf(r.Out, "! %s\n", t.Text)
		}
	}

	unsubscribe := r.Ctrl.Subscribe(r.render)
	defer unsubscribe()

	fmt.Fprintln(r.Out, "Attach an image with /image <file> [message], then ask about it. /quit to exit.")

	var pending []byte

	scanner := bufio.NewScanner(r.In)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for r.prompt(); scanner.Scan(); r.prompt() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		cmd, rest, _ := strings.Cut(line, " ")

		switch {
		case line == "/quit" || line == "/exit":
			return nil

		case line == "/reset":
			pending = nil
			if err := r.Ctrl.Reset(ctx); err != nil {
				fmt.Fprintf(r.Out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(r.Out, "conversation cleared")

		case line == "/stats":
			r.stats()

		case cmd == "/image":
			file, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
			if file == "" {
				fmt.Fprintln(r.Out, "usage: /image <file> [message]")
				continue
			}

			img, err := r.ReadFile(file)
			if err != nil {
				fmt.Fprintf(r.Out, "error: %v\n", err)
				continue
			}

			pending = img
			fmt.Fprintf(r.Out, "attached %s (%d bytes)\n", file, len(img))

			if text = strings.TrimSpace(text); text != "" {
				if r.send(ctx, text, pending) {
					pending = nil
				}
			}

		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(r.Out, "unknown command %q\n", cmd)

		case line == "" && pending == nil:

		default:
			if r.send(ctx, line, pending) {
				pending = nil
			}
		}
	}

	return scanner.Err()
}

// send submits the message and reports whether the attached image was
// consumed.
func (r *REPL) send(ctx context.Context, text string, image []byte) bool {
	if r.RequireImage && !r.Ctrl.CanSubmit(text, image != nil) {
		switch {
		case !r.Ctrl.HasImage() && image == nil:
			fmt.Fprintln(r.Out, "attach an image first with /image <file>")
		case text == "":
			fmt.Fprintln(r.Out, "type a message about the image")
		default:
			fmt.Fprintln(r.Out, "busy, try again")
		}
		return false
	}

	_, err := r.Ctrl.Submit(ctx, text, image)
	r.endStream()

	var engErr *chat.EngineError

	switch {
	case err == nil:
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrClosed):
		fmt.Fprintf(r.Out, "error: %v\n", err)
		return false
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(r.Out, "canceled")
	case errors.Is(err, chat.ErrEngineUnavailable), errors.As(err, &engErr):
		// Rendered from the notice turn.
	default:
		fmt.Fprintf(r.Out, "error: %v\n", err)
	}

	return true
}

// render runs on the goroutine that mutates the controller, which is always
// the REPL goroutine.
func (r *REPL) render(u chat.Update) {
	switch u.Kind {
	case chat.UpdatePhase:
		switch u.Phase {
		case chat.PhaseEmbeddingImage:
			fmt.Fprintln(r.Out, "(embedding image)")
		case chat.PhaseReloadingModel:
			fmt.Fprintln(r.Out, "(loading model)")
		case chat.PhaseGeneratingResponse:
			fmt.Fprint(r.Out, "assistant> ")
			r.streaming = true
		case chat.PhaseIdle:
			r.endStream()
		}

	case chat.UpdateFragment:
		fmt.Fprint(r.Out, u.Fragment)

	case chat.UpdateTurn:
		if u.Turn.Notice {
			r.endStream()
			fmt.Fprintf(r.Out, "! %s\n", u.Turn.Text)
		}
	}
}

func (r *REPL) endStream() {
	if r.streaming {
		fmt.Fprintln(r.Out)
		r.streaming = false
	}
}

func (r *REPL) prompt() {
	fmt.Fprint(r.Out, "you> ")
}

func (r *REPL) stats() {
	s := metrics.Snapshot()
	snap := r.Ctrl.Snapshot()

	fmt.Fprintf(r.Out, "phase        : %s\n", snap.Phase)
	fmt.Fprintf(r.Out, "turns        : %d\n", len(snap.Turns))
	fmt.Fprintf(r.Out, "image        : %v\n", snap.HasImage)
	fmt.Fprintf(r.Out, "generations  : %d (errors %d)\n", s.Turns, s.Errors)

	rows := []struct {
		name string
		stat metrics.Stat
	}{
		{"model load", s.ModelLoad},
		{"proj load", s.ProjLoad},
		{"image embed", s.ImageEmbed},
		{"prefill", s.Prefill},
		{"ttft", s.TimeToFirstToken},
	}

	for _, row := range rows {
		fmt.Fprintf(r.Out, "%-13s: avg %.3fs min %.3fs max %.3fs (n=%d)\n", row.name, row.stat.Avg, row.stat.Min, row.stat.Max, row.stat.Count)
	}

	fmt.Fprintf(r.Out, "tokens/turn  : %.1f\n", s.TurnTokens.Avg)
	fmt.Fprintf(r.Out, "tokens/sec   : %.1f\n", s.TokensPerSecond.Avg)
}
