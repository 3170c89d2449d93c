package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author class of a Message. The set is closed.
type Role string

const (
	// RoleSystem marks a system prompt.
	RoleSystem Role = "system"
	// RoleHuman marks a user message.
	RoleHuman Role = "user"
	// RoleAI marks a model message, optionally carrying tool calls.
	RoleAI Role = "assistant"
	// RoleTool marks the result of one tool call.
	RoleTool Role = "tool"
)

// ToolCall describes a model-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`                  // Unique within its AI message
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON object
}

// Args decodes Arguments. Empty arguments decode to an empty map.
func (tc ToolCall) Args() (map[string]any, error) {
	args := map[string]any{}
	if tc.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", tc.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Message is one conversation entry. ToolCalls is only set on AI messages;
// ToolCallID and Name only on ToolResult messages.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// NewSystemMessage creates a system prompt message.
func NewSystemMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Content: text}
}

// NewHumanMessage creates a user message.
func NewHumanMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleHuman, Content: text}
}

// NewAIMessage creates a model message. Calls without an id are assigned one.
func NewAIMessage(text string, calls ...ToolCall) Message {
	var tcs []ToolCall
	if len(calls) > 0 {
		tcs = make([]ToolCall, len(calls))
		for i, c := range calls {
			if c.ID == "" {
				c.ID = "call_" + NewID()
			}
			tcs[i] = c
		}
	}
	return Message{ID: NewID(), Role: RoleAI, Content: text, ToolCalls: tcs}
}

// NewToolResultMessage creates the result message answering call callID.
func NewToolResultMessage(callID, name, content string) Message {
	return Message{ID: NewID(), Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// HasToolCalls reports whether m is an AI message requesting at least one tool call.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAI && len(m.ToolCalls) > 0
}
