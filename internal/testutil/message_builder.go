package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/secmesh/core"
)

// MessageBuilder provides a fluent helper for constructing AI messages in tests.
// Example:
//
//	msg := testutil.AI().Call("query_neo4j", map[string]any{"query": "RETURN 1"}).Build()
//
// Chain only the parts you need; call ids are generated unless set.
type MessageBuilder struct {
	text  string
	calls []core.ToolCall
}

// AI starts an AI message builder.
func AI() *MessageBuilder { return &MessageBuilder{} }

// Text sets the message text (chainable).
func (b *MessageBuilder) Text(t string) *MessageBuilder { b.text = t; return b }

// Call appends a tool call with JSON-encoded args (chainable).
func (b *MessageBuilder) Call(name string, args map[string]any) *MessageBuilder {
	b.calls = append(b.calls, ToolCall("", name, args))
	return b
}

// CallWithID appends a tool call with a fixed id (chainable).
func (b *MessageBuilder) CallWithID(id, name string, args map[string]any) *MessageBuilder {
	b.calls = append(b.calls, ToolCall(id, name, args))
	return b
}

// RawCall appends a tool call with verbatim argument text (chainable).
func (b *MessageBuilder) RawCall(name, arguments string) *MessageBuilder {
	b.calls = append(b.calls, core.ToolCall{Name: name, Arguments: arguments})
	return b
}

// Build constructs the core.Message value.
func (b *MessageBuilder) Build() core.Message {
	return core.NewAIMessage(b.text, b.calls...)
}

// ToolCall builds a core.ToolCall with JSON-encoded args.
func ToolCall(id, name string, args map[string]any) core.ToolCall {
	raw := "{}"
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal args: %v", err))
		}
		raw = string(b)
	}
	return core.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Final builds an AI message without tool calls.
func Final(text string) core.Message { return core.NewAIMessage(text) }
