// Package chat provides the conversation controller that sequences calls into
// a multimodal inference engine and maintains the turn based transcript sent
// to the model.
//
// One operation is active at a time. Submit, Warmup and EnsureEngine are
// rejected with ErrBusy while another operation runs, and Reset waits for the
// running operation to finish before it tears down the engine.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Config represents the configuration for a controller.
//
// NewEngine is called to construct the engine the first time it's needed and
// again after every Reset. It is mandatory.
type Config struct {
	NewEngine EngineFunc
	Log       Logger
}

// Controller serializes all interaction with an Engine and exposes the
// conversation state for rendering.
type Controller struct {
	log       Logger
	newEngine EngineFunc
	resetMu   sync.Mutex

	// These fields are only touched by the active operation.
	engine Engine
	stale  bool

	mu         sync.Mutex
	phase      Phase
	opPhase    Phase
	turns      []Turn
	transcript string
	image      []byte
	active     chan struct{}
	resetting  bool
	closed     bool
	subs       map[int]func(Update)
	nextSub    int
}

// New constructs a controller. The engine is not constructed until it's
// needed.
func New(cfg Config) (*Controller, error) {
	if cfg.NewEngine == nil {
		return nil, fmt.Errorf("new: engine constructor is required")
	}

	l := cfg.Log
	if l == nil {
		l = func(ctx context.Context, msg string, args ...any) {}
	}

	c := Controller{
		log:       l,
		newEngine: cfg.NewEngine,
		subs:      make(map[int]func(Update)),
	}

	return &c, nil
}

// EnsureEngine constructs the engine if it doesn't exist yet. A failure is
// recorded as a notice turn and the next call tries again.
func (c *Controller) EnsureEngine(ctx context.Context) error {
	done, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(done)

	if c.engine != nil {
		return nil
	}

	c.setPhase(PhaseReloadingModel)

	return c.ensureEngine(ctx)
}

// Warmup constructs the engine and evaluates the system prompt so the first
// turn doesn't pay for it.
func (c *Controller) Warmup(ctx context.Context) error {
	done, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(done)

	if c.engine == nil {
		c.setPhase(PhaseReloadingModel)
	}

	if err := c.ensureEngine(ctx); err != nil {
		return err
	}

	if err := c.engine.InitSystemPrompt(ctx); err != nil {
		return fmt.Errorf("warmup: %w", engineErr("init-system-prompt", err))
	}

	return nil
}

// Submit adds a user turn with an optional image, generates the assistant
// response and returns the assistant turn.
//
// A new image replaces the image context and restarts the engine context. A
// text only turn without an image context runs against a cleared engine
// context. A text only turn with an image context continues the session
// anchored by that image.
func (c *Controller) Submit(ctx context.Context, text string, image []byte) (Turn, error) {
	done, err := c.begin()
	if err != nil {
		return Turn{}, err
	}
	defer c.end(done)

	c.mu.Lock()
	hasImage := c.image != nil
	c.mu.Unlock()

	if text == "" && len(image) == 0 && !hasImage {
		return Turn{}, ErrEmptyMessage
	}

	if err := c.ensureEngine(ctx); err != nil {
		return Turn{}, err
	}

	eng := c.engine

	// -------------------------------------------------------------------------

	var active []byte
	var attached []byte

	switch {
	case len(image) > 0:
		c.setPhase(PhaseEmbeddingImage)

		img := bytes.Clone(image)

		c.mu.Lock()
		c.image = img
		c.mu.Unlock()

		c.restart(ctx, eng, true)

		active = img
		attached = img

	case !hasImage:
		c.restart(ctx, eng, false)

	default:
		if c.stale {
			c.restart(ctx, eng, true)
		}

		c.mu.Lock()
		active = c.image
		c.mu.Unlock()
	}

	c.setPhase(PhaseGeneratingResponse)

	// -------------------------------------------------------------------------

	transcript := c.appendTurn(newTurn(RoleUser, text, attached))

	if err := eng.BeginGeneration(ctx, transcript, active); err != nil {
		return c.failTurn(ctx, "", engineErr("begin-generation", err))
	}

	response, err := c.stream(ctx, eng)
	if err != nil {
		return c.failTurn(ctx, response, err)
	}

	reply := newTurn(RoleAssistant, strings.TrimSpace(response), nil)
	c.appendTurn(reply)

	return reply, nil
}

// Reset waits for any running operation to finish, then clears the
// conversation and the image context and recreates the engine.
func (c *Controller) Reset(ctx context.Context) error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.resetting = true
	c.publishPhaseLocked(PhaseReloadingModel)
	running := c.active
	c.mu.Unlock()

	if running != nil {
		select {
		case <-running:
		case <-ctx.Done():
			c.mu.Lock()
			c.resetting = false
			p := PhaseIdle
			if c.active != nil {
				p = c.opPhase
			}
			c.publishPhaseLocked(p)
			c.mu.Unlock()

			return fmt.Errorf("reset: waiting for generation: %w", ctx.Err())
		}
	}

	own := make(chan struct{})

	c.mu.Lock()
	c.active = own
	c.mu.Unlock()

	// -------------------------------------------------------------------------

	if c.engine != nil {
		if err := c.engine.ResetContext(ctx); err != nil {
			c.log(ctx, "reset", "status", "reset-context", "ERROR", err)
		}

		if err := c.engine.Close(); err != nil {
			c.log(ctx, "reset", "status", "close-engine", "ERROR", err)
		}

		c.engine = nil
	}

	c.stale = false

	c.mu.Lock()
	c.turns = nil
	c.transcript = ""
	c.image = nil
	c.publishLocked(Update{Kind: UpdateReset})
	c.mu.Unlock()

	err := c.ensureEngine(ctx)

	c.mu.Lock()
	c.resetting = false
	c.active = nil
	close(own)
	c.opPhase = PhaseIdle
	c.publishPhaseLocked(PhaseIdle)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	return nil
}

// Close waits for the running operation and releases the engine. The
// controller can't be used after Close.
func (c *Controller) Close() error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	running := c.active
	c.mu.Unlock()

	if running != nil {
		<-running
	}

	if c.engine == nil {
		return nil
	}

	err := c.engine.Close()
	c.engine = nil

	return err
}

// =============================================================================

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)

	return Snapshot{
		Phase:      c.phase,
		Turns:      turns,
		Transcript: c.transcript,
		HasImage:   c.image != nil,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.phase
}

// HasImage reports whether an image anchors the current session.
func (c *Controller) HasImage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.image != nil
}

// CanSubmit reports whether a message could be sent right now. Without an
// image context an attached image is required, otherwise the text must not
// be empty.
func (c *Controller) CanSubmit(text string, attached bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.active != nil || c.phase != PhaseIdle {
		return false
	}

	if c.image == nil {
		return attached
	}

	return text != ""
}

// Subscribe registers fn to receive every update in the order the mutations
// happen. Updates are delivered synchronously, so fn must not call back into
// the controller. The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(Update)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subs, id)
	}
}

// =============================================================================

func (c *Controller) begin() (chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.active != nil || c.phase != PhaseIdle {
		return nil, ErrBusy
	}

	done := make(chan struct{})
	c.active = done
	c.opPhase = PhaseIdle

	return done, nil
}

func (c *Controller) end(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == done {
		c.active = nil
	}

	close(done)

	c.opPhase = PhaseIdle
	if !c.resetting {
		c.publishPhaseLocked(PhaseIdle)
	}
}

func (c *Controller) ensureEngine(ctx context.Context) error {
	if c.engine != nil {
		return nil
	}

	eng, err := c.newEngine(ctx)
	if err == nil && eng == nil {
		err = errors.New("no engine returned")
	}

	if err != nil {
		c.log(ctx, "ensure-engine", "status", "model loading failed", "ERROR", err)
		c.appendTurn(newNotice(fmt.Sprintf("Model loading failed: %v", err)))

		return fmt.Errorf("ensure-engine: %w: %w", ErrEngineUnavailable, err)
	}

	c.log(ctx, "ensure-engine", "status", "model loaded")
	c.engine = eng
	c.stale = false

	return nil
}

// restart clears the engine context and, when asked, evaluates the system
// prompt again. Failures are logged and the turn continues best effort.
func (c *Controller) restart(ctx context.Context, eng Engine, systemPrompt bool) {
	if err := eng.ResetContext(ctx); err != nil {
		c.log(ctx, "submit", "status", "restart", "ERROR", engineErr("reset-context", err))
	}

	if systemPrompt {
		if err := eng.InitSystemPrompt(ctx); err != nil {
			c.log(ctx, "submit", "status", "restart", "ERROR", engineErr("init-system-prompt", err))
		}
	}

	c.stale = false
}

// stream pulls fragments until the stop marker shows up or the engine hits
// its position bound.
func (c *Controller) stream(ctx context.Context, eng Engine) (string, error) {
	var response string
	var published int

	for eng.Position() < eng.MaxPosition() {
		if err := ctx.Err(); err != nil {
			return response, err
		}

		fragment, err := eng.NextFragment(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return response, ctxErr
			}

			return response, engineErr("next-fragment", err)
		}

		var stop bool
		response, stop = cutAtStop(response, fragment)

		if len(response) > published {
			c.publish(Update{Kind: UpdateFragment, Fragment: response[published:]})
			published = len(response)
		}

		if stop {
			break
		}
	}

	return response, nil
}

// failTurn closes out the exchange with what was produced so the transcript
// keeps alternating, and marks the engine context as unusable.
func (c *Controller) failTurn(ctx context.Context, partial string, err error) (Turn, error) {
	c.stale = true

	reply := newTurn(RoleAssistant, strings.TrimSpace(partial), nil)
	c.appendTurn(reply)

	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.log(ctx, "submit", "status", "generation failed", "ERROR", err)
		c.appendTurn(newNotice(fmt.Sprintf("Response generation failed: %v", err)))
	}

	return reply, fmt.Errorf("submit: %w", err)
}

// appendTurn records the turn and returns the updated transcript.
func (c *Controller) appendTurn(t Turn) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, t)

	if !t.Notice {
		var b strings.Builder
		b.WriteString(c.transcript)
		writeTurn(&b, t)
		c.transcript = b.String()
	}

	c.publishLocked(Update{Kind: UpdateTurn, Turn: t})

	return c.transcript
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opPhase = p
	if c.resetting {
		return
	}

	c.publishPhaseLocked(p)
}

func (c *Controller) publishPhaseLocked(p Phase) {
	if c.phase == p {
		return
	}

	c.phase = p
	c.publishLocked(Update{Kind: UpdatePhase, Phase: p})
}

func (c *Controller) publish(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.publishLocked(u)
}

func (c *Controller) publishLocked(u Update) {
	for _, fn := range c.subs {
		fn(u)
	}
}
