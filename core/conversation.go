package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnmatchedToolResult is returned when a ToolResult does not answer an
	// open call of the immediately preceding AI message.
	ErrUnmatchedToolResult = errors.New("tool result does not match a pending tool call")
	// ErrDuplicateToolCallID is returned when an AI message repeats a call id.
	ErrDuplicateToolCallID = errors.New("duplicate tool call id")
	// ErrUnknownRole is returned for messages outside the closed role set.
	ErrUnknownRole = errors.New("unknown message role")
)

// Conversation is the append-only message list of one run. Messages are
// never mutated or removed once appended. It is safe for concurrent access.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
	pending  map[string]struct{}
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{pending: map[string]struct{}{}}
}

// Append validates and appends messages atomically: either all are appended
// or none is. ToolResult messages must answer a still-open call of the most
// recent AI message.
func (c *Conversation) Append(msgs ...Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]struct{}, len(c.pending))
	for id := range c.pending {
		pending[id] = struct{}{}
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleAI:
			pending = make(map[string]struct{}, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if _, dup := pending[tc.ID]; dup {
					return fmt.Errorf("%w: %s", ErrDuplicateToolCallID, tc.ID)
				}
				pending[tc.ID] = struct{}{}
			}
		case RoleTool:
			if _, ok := pending[m.ToolCallID]; !ok {
				return fmt.Errorf("%w: %s", ErrUnmatchedToolResult, m.ToolCallID)
			}
			delete(pending, m.ToolCallID)
		case RoleHuman, RoleSystem:
			pending = map[string]struct{}{}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
		}
	}

	c.messages = append(c.messages, msgs...)
	c.pending = pending

	return nil
}

// Messages returns a copy of the conversation.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)

	return out
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return Message{}, false
	}

	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}
