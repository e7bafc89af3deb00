package chat

import (
	"errors"
	"fmt"
)

// Set of errors returned by the controller.
var (
	ErrBusy              = errors.New("controller is busy")
	ErrEmptyMessage      = errors.New("message requires text or an image")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrClosed            = errors.New("controller is closed")
)

// EngineError is returned when a call into the engine fails. Op names the
// engine call.
type EngineError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying engine error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func engineErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return &EngineError{Op: op, Err: err}
}
