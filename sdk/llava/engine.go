package llava

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/llava/sdk/llava/observ/metrics"
	"github.com/hybridgroup/yzma/pkg/llama"
	"github.com/hybridgroup/yzma/pkg/mtmd"
)

// Engine owns a loaded model, its projector and a llama context. It is not
// safe for concurrent use; the chat controller serializes every call.
type Engine struct {
	cfg       Config
	log       Logger
	modelName string
	model     llama.Model
	vocab     llama.Vocab
	mctx      mtmd.Context
	lctx      llama.Context
	ctxParams llama.ContextParams
	sampler   llama.Sampler
	buf       []byte

	pos       int
	max       int
	sysReady  bool
	dirty     bool
	produced  int
	genStart  time.Time
	firstSeen bool
}

// New loads the model and projector files and creates the llama context.
// Init must be called first.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if libraryLocation == "" {
		return nil, fmt.Errorf("new: the Init() function has not been called")
	}

	cfg = withDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	// -------------------------------------------------------------------------

	mparams := llama.ModelDefaultParams()

	start := time.Now()

	mdl, err := llama.ModelLoadFromFile(cfg.ModelFile, mparams)
	if err != nil {
		return nil, fmt.Errorf("new: model-load-from-file: %w", err)
	}

	metrics.AddModelFileLoadTime(time.Since(start))

	cfg = adjustConfig(cfg, mdl)

	// -------------------------------------------------------------------------

	mctxParams := mtmd.ContextParamsDefault()
	mctxParams.UseGPU = true
	mctxParams.FlashAttentionType = llama.FlashAttentionTypeAuto

	start = time.Now()

	mctx, err := mtmd.InitFromFile(cfg.ProjFile, mdl, mctxParams)
	if err != nil {
		llama.ModelFree(mdl)
		return nil, fmt.Errorf("new: mtmd-init-from-file: %w", err)
	}

	metrics.AddProjFileLoadTime(time.Since(start))

	// -------------------------------------------------------------------------

	ctxParams := modelCtxParams(cfg)

	lctx, err := llama.InitFromModel(mdl, ctxParams)
	if err != nil {
		mtmd.Free(mctx)
		llama.ModelFree(mdl)
		return nil, fmt.Errorf("new: init-from-model: %w", err)
	}

	e := Engine{
		cfg:       cfg,
		log:       cfg.Log,
		modelName: strings.TrimSuffix(filepath.Base(cfg.ModelFile), filepath.Ext(cfg.ModelFile)),
		model:     mdl,
		vocab:     llama.ModelGetVocab(mdl),
		mctx:      mctx,
		lctx:      lctx,
		ctxParams: ctxParams,
		sampler:   toSampler(cfg.Params),
		buf:       make([]byte, 1024),
	}

	e.log(ctx, "llava", "status", "engine created", "model", e.modelName, "context-window", cfg.ContextWindow, "max-tokens", cfg.MaxTokens)

	return &e, nil
}

// ModelName returns the model name.
func (e *Engine) ModelName() string {
	return e.modelName
}

// Config returns a copy of the configuration being used. This may be
// different from the configuration passed to New if the model has overridden
// any of the settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// InitSystemPrompt evaluates the system prompt at the start of the context.
// It does nothing when the context already holds only the system prompt.
func (e *Engine) InitSystemPrompt(ctx context.Context) (err error) {
	defer e.recoverErr("init-system-prompt", &err)

	if e.dirty {
		if err := e.recreate(); err != nil {
			return fmt.Errorf("init-system-prompt: %w", err)
		}
	}

	if err := e.evalSystemPrompt(); err != nil {
		return fmt.Errorf("init-system-prompt: %w", err)
	}

	return nil
}

// ResetContext discards everything evaluated so far by recreating the llama
// context.
func (e *Engine) ResetContext(ctx context.Context) (err error) {
	defer e.recoverErr("reset-context", &err)

	if err := e.recreate(); err != nil {
		return fmt.Errorf("reset-context: %w", err)
	}

	return nil
}

// BeginGeneration evaluates the system prompt, the image when one is given
// and the transcript followed by the user postfix. Sampling starts with the
// next call to NextFragment.
func (e *Engine) BeginGeneration(ctx context.Context, transcript string, image []byte) (err error) {
	defer e.recoverErr("begin-generation", &err)

	if e.dirty {
		if err := e.recreate(); err != nil {
			return fmt.Errorf("begin-generation: %w", err)
		}
	}

	if err := e.evalSystemPrompt(); err != nil {
		return fmt.Errorf("begin-generation: %w", err)
	}

	e.dirty = true

	if len(image) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("begin-generation: %w", err)
		}

		start := time.Now()

		if err := e.evalImage(image); err != nil {
			return fmt.Errorf("begin-generation: %w", err)
		}

		metrics.AddImageEmbedTime(time.Since(start))
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin-generation: %w", err)
	}

	start := time.Now()

	if err := e.evalText(transcript+e.cfg.UserPostfix, false); err != nil {
		return fmt.Errorf("begin-generation: %w", err)
	}

	metrics.AddPrefillTime(time.Since(start))

	e.max = min(e.pos+e.cfg.MaxTokens, e.cfg.ContextWindow)
	e.produced = 0
	e.firstSeen = false
	e.genStart = time.Now()

	e.log(ctx, "llava", "status", "generation started", "position", e.pos, "max-position", e.max, "image", len(image) > 0)

	return nil
}

// NextFragment samples the next token and returns its text. At the end of
// generation it returns an empty fragment and moves the position to
// MaxPosition.
func (e *Engine) NextFragment(ctx context.Context) (fragment string, err error) {
	defer e.recoverErr("next-fragment", &err)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if e.pos >= e.max {
		return "", nil
	}

	token := llama.SamplerSample(e.sampler, e.lctx, -1)

	if llama.VocabIsEOG(e.vocab, token) {
		e.finish()
		return "", nil
	}

	l := llama.TokenToPiece(e.vocab, token, e.buf, 0, false)
	piece := string(e.buf[:l])

	if !e.firstSeen {
		e.firstSeen = true
		metrics.AddTimeToFirstToken(time.Since(e.genStart))
	}

	llama.Decode(e.lctx, llama.BatchGetOne([]llama.Token{token}))

	e.pos++
	e.produced++

	if e.pos >= e.max {
		e.finish()
	}

	return piece, nil
}

// Position returns the number of tokens evaluated in the context, or
// MaxPosition once generation has ended.
func (e *Engine) Position() int {
	return e.pos
}

// MaxPosition returns the position generation must stop at.
func (e *Engine) MaxPosition() int {
	return e.max
}

// Close releases the context, the projector and the model.
func (e *Engine) Close() error {
	if e.model == 0 {
		return nil
	}

	llama.SamplerFree(e.sampler)

	if e.lctx != 0 {
		llama.Synchronize(e.lctx)
		llama.Free(e.lctx)
		e.lctx = 0
	}

	mtmd.Free(e.mctx)
	llama.ModelFree(e.model)

	e.model = 0

	return nil
}

// =============================================================================

func (e *Engine) recreate() error {
	if e.lctx != 0 {
		llama.Synchronize(e.lctx)
		llama.Free(e.lctx)
		e.lctx = 0
	}

	lctx, err := llama.InitFromModel(e.model, e.ctxParams)
	if err != nil {
		return fmt.Errorf("init-from-model: %w", err)
	}

	llama.SamplerFree(e.sampler)

	e.lctx = lctx
	e.sampler = toSampler(e.cfg.Params)
	e.pos = 0
	e.max = 0
	e.sysReady = false
	e.dirty = false

	return nil
}

func (e *Engine) evalSystemPrompt() error {
	if e.sysReady {
		return nil
	}

	if err := e.evalText(e.cfg.SystemPrompt, true); err != nil {
		return fmt.Errorf("system-prompt: %w", err)
	}

	e.sysReady = true

	return nil
}

// evalText tokenizes and decodes the text in batches of at most NBatch
// tokens.
func (e *Engine) evalText(text string, addSpecial bool) error {
	tokens := llama.Tokenize(e.vocab, text, addSpecial, true)
	if len(tokens) == 0 {
		return nil
	}

	if e.pos+len(tokens) >= e.cfg.ContextWindow {
		return fmt.Errorf("eval-text: %d tokens at position %d exceed the context window of %d", len(tokens), e.pos, e.cfg.ContextWindow)
	}

	for start := 0; start < len(tokens); start += e.cfg.NBatch {
		end := min(start+e.cfg.NBatch, len(tokens))
		llama.Decode(e.lctx, llama.BatchGetOne(tokens[start:end]))
	}

	e.pos += len(tokens)

	return nil
}

// evalImage embeds the image through the projector at the current position.
func (e *Engine) evalImage(image []byte) error {
	f, err := os.CreateTemp("", "llava-image-*")
	if err != nil {
		return fmt.Errorf("eval-image: create-temp: %w", err)
	}

	imageFile := f.Name()
	defer os.Remove(imageFile)

	if _, err := f.Write(image); err != nil {
		f.Close()
		return fmt.Errorf("eval-image: write-temp: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("eval-image: close-temp: %w", err)
	}

	bitmap := mtmd.BitmapInitFromFile(e.mctx, imageFile)
	if bitmap == 0 {
		return errors.New("eval-image: unable to decode image")
	}
	defer mtmd.BitmapFree(bitmap)

	output := mtmd.InputChunksInit()
	defer mtmd.InputChunksFree(output)

	input := mtmd.NewInputText(mtmd.DefaultMarker(), false, true)

	mtmd.Tokenize(e.mctx, output, input, []mtmd.Bitmap{bitmap})

	var newNPast llama.Pos
	mtmd.HelperEvalChunks(e.mctx, e.lctx, output, llama.Pos(e.pos), 0, int32(e.cfg.NBatch), false, &newNPast)

	if int(newNPast) <= e.pos {
		return errors.New("eval-image: image produced no tokens")
	}

	if int(newNPast) >= e.cfg.ContextWindow {
		return fmt.Errorf("eval-image: image at position %d exceeds the context window of %d", newNPast, e.cfg.ContextWindow)
	}

	e.pos = int(newNPast)

	return nil
}

func (e *Engine) finish() {
	metrics.AddTurns()
	metrics.AddTurnUsage(e.produced, time.Since(e.genStart))

	e.pos = e.max
}

func (e *Engine) recoverErr(op string, err *error) {
	if rec := recover(); rec != nil {
		metrics.AddPanics()
		*err = fmt.Errorf("%s: %v", op, rec)
	}

	if *err != nil {
		metrics.AddErrors()
	}
}
