package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

// Set of roles a turn can have.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn represents a single entry in the conversation. Image is only set on
// user turns that attached an image. Notice marks a system-visible message,
// like a model loading error, that is rendered with the assistant but is
// never sent to the model.
type Turn struct {
	ID     uuid.UUID
	Role   Role
	Text   string
	Image  []byte
	Notice bool
	Time   time.Time
}

func newTurn(role Role, text string, image []byte) Turn {
	return Turn{
		ID:    uuid.New(),
		Role:  role,
		Text:  text,
		Image: image,
		Time:  time.Now(),
	}
}

func newNotice(text string) Turn {
	t := newTurn(RoleAssistant, text, nil)
	t.Notice = true

	return t
}

// =============================================================================

// Phase represents what the controller is currently doing.
type Phase int

// Set of phases the controller moves through.
const (
	PhaseIdle Phase = iota
	PhaseEmbeddingImage
	PhaseGeneratingResponse
	PhaseReloadingModel
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseEmbeddingImage:     "embedding-image",
	PhaseGeneratingResponse: "generating-response",
	PhaseReloadingModel:     "reloading-model",
}

// String implements the fmt.Stringer interface.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}

	return phaseNames[p]
}

// =============================================================================

// Snapshot is a copy of the observable state of the controller.
type Snapshot struct {
	Phase      Phase
	Turns      []Turn
	Transcript string
	HasImage   bool
}

// UpdateKind identifies what changed in an Update.
type UpdateKind int

// Set of update kinds delivered to subscribers.
const (
	UpdatePhase UpdateKind = iota + 1
	UpdateTurn
	UpdateFragment
	UpdateReset
)

// Update is delivered to subscribers for every observable mutation.
//
// UpdatePhase carries the new Phase. UpdateTurn carries the appended Turn.
// UpdateFragment carries a piece of the assistant response as it is streamed.
// UpdateReset is sent once the conversation has been cleared.
type Update struct {
	Kind     UpdateKind
	Phase    Phase
	Turn     Turn
	Fragment string
}
