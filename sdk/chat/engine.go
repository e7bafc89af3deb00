package chat

import "context"

// Engine is the capability the controller needs from an inference engine.
// A single Engine is only ever used by one operation at a time.
//
// Position must always advance on NextFragment, or jump to MaxPosition when
// the engine has nothing more to produce, so the streaming loop terminates.
type Engine interface {
	InitSystemPrompt(ctx context.Context) error
	ResetContext(ctx context.Context) error
	BeginGeneration(ctx context.Context, transcript string, image []byte) error
	NextFragment(ctx context.Context) (string, error)
	Position() int
	MaxPosition() int
	Close() error
}

// EngineFunc constructs an Engine from the fixed model configuration.
type EngineFunc func(ctx context.Context) (Engine, error)

// Logger provides a function for logging messages from different APIs.
type Logger func(ctx context.Context, msg string, args ...any)
