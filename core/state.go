package core

import (
	"errors"
	"fmt"
)

// ErrInvalidInitialMessage is returned when a run does not start with a Human message.
var ErrInvalidInitialMessage = errors.New("run must start with a human message")

// State is the unit of execution: one conversation plus one ExecutionContext.
// A State owns its conversation exclusively; the store handle inside Exec is borrowed.
type State struct {
	Conversation *Conversation
	Exec         *ExecutionContext
}

// NewState starts a run from the initial Human message.
func NewState(initial Message, exec *ExecutionContext) (*State, error) {
	if initial.Role != RoleHuman {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidInitialMessage, initial.Role)
	}

	if exec == nil {
		return nil, errors.New("execution context is required")
	}

	conv := NewConversation()
	if err := conv.Append(initial); err != nil {
		return nil, err
	}

	return &State{Conversation: conv, Exec: exec}, nil
}
