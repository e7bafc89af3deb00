// Package chattest provides a scripted engine for testing code that drives a
// chat.Controller without loading a model.
package chattest

import (
	"bytes"
	"context"
	"sync"

	"github.com/ardanlabs/llava/sdk/chat"
)

// Set of engine calls recorded by Engine.
const (
	CallInitSystemPrompt = "init-system-prompt"
	CallResetContext     = "reset-context"
	CallBeginGeneration  = "begin-generation"
	CallNextFragment     = "next-fragment"
	CallClose            = "close"
)

const defMaxTokens = 64

// Engine is a chat.Engine that replays scripted replies. Every call to
// BeginGeneration consumes the next entry of Replies and NextFragment hands
// out its fragments one at a time. When a reply runs out of fragments the
// position jumps to the maximum, like an end of generation token would.
//
// Gate, when set, makes every NextFragment wait for a value on the channel so
// a test can hold a generation in flight. Started, when set, receives a value
// every time a generation begins.
type Engine struct {
	Replies   [][]string
	MaxTokens int

	BeginErr    error
	FragmentErr error
	FailAfter   int
	Gate        chan struct{}
	Started     chan struct{}

	mu          sync.Mutex
	calls       []string
	transcripts []string
	images      [][]byte
	reply       int
	current     []string
	delivered   int
	pos         int
	max         int
	closed      bool
}

// InitSystemPrompt implements chat.Engine.
func (e *Engine) InitSystemPrompt(ctx context.Context) error {
	e.record(CallInitSystemPrompt)
	return nil
}

// ResetContext implements chat.Engine.
func (e *Engine) ResetContext(ctx context.Context) error {
	e.record(CallResetContext)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pos = 0
	e.max = 0

	return nil
}

// BeginGeneration implements chat.Engine.
func (e *Engine) BeginGeneration(ctx context.Context, transcript string, image []byte) error {
	e.record(CallBeginGeneration)

	e.mu.Lock()
	e.transcripts = append(e.transcripts, transcript)
	e.images = append(e.images, bytes.Clone(image))

	if e.BeginErr != nil {
		e.mu.Unlock()
		return e.BeginErr
	}

	e.current = nil
	if e.reply < len(e.Replies) {
		e.current = e.Replies[e.reply]
	}
	e.reply++

	e.delivered = 0
	e.pos = 0
	e.max = e.MaxTokens
	if e.max <= 0 {
		e.max = defMaxTokens
	}
	e.mu.Unlock()

	if e.Started != nil {
		e.Started <- struct{}{}
	}

	return nil
}

// NextFragment implements chat.Engine.
func (e *Engine) NextFragment(ctx context.Context) (string, error) {
	e.record(CallNextFragment)

	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.FragmentErr != nil && e.delivered >= e.FailAfter {
		return "", e.FragmentErr
	}

	if e.delivered >= len(e.current) {
		e.pos = e.max
		return "", nil
	}

	fragment := e.current[e.delivered]
	e.delivered++
	e.pos++

	return fragment, nil
}

// Position implements chat.Engine.
func (e *Engine) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pos
}

// MaxPosition implements chat.Engine.
func (e *Engine) MaxPosition() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.max
}

// Close implements chat.Engine.
func (e *Engine) Close() error {
	e.record(CallClose)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	return nil
}

// =============================================================================

// Calls returns the engine calls in the order they happened. Calls to
// NextFragment are included.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	calls := make([]string, len(e.calls))
	copy(calls, e.calls)

	return calls
}

// Count returns how many times the named call happened.
func (e *Engine) Count(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var n int
	for _, c := range e.calls {
		if c == call {
			n++
		}
	}

	return n
}

// Transcripts returns the transcripts passed to BeginGeneration.
func (e *Engine) Transcripts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := make([]string, len(e.transcripts))
	copy(t, e.transcripts)

	return t
}

// Images returns the images passed to BeginGeneration.
func (e *Engine) Images() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	imgs := make([][]byte, len(e.images))
	copy(imgs, e.images)

	return imgs
}

// Closed reports whether Close was called since the engine was last opened.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

func (e *Engine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, call)
}

func (e *Engine) open() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = false
}

// =============================================================================

// Factory hands out engines to a controller and counts the constructions.
// Errs is consumed first: each call returns the next error until the slice
// is exhausted, after which Engine is returned.
type Factory struct {
	Engine *Engine
	Errs   []error

	mu    sync.Mutex
	calls int
}

// New implements chat.EngineFunc.
func (f *Factory) New(ctx context.Context) (chat.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		return nil, err
	}

	f.Engine.open()

	return f.Engine, nil
}

// Calls returns how many times New was called.
func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}
