package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds for service errors.
var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotStarted        = errors.New("service not started")
	ErrAlreadyStarted    = errors.New("service already started")
	ErrUnknownCommand    = errors.New("unknown session command")
)

// TransitionError reports a command that is not allowed in the current state.
type TransitionError struct {
	From    State
	Command Command
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", ErrInvalidTransition, e.Command, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
