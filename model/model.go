package model

import (
	"context"
	"errors"

	"github.com/hupe1980/secmesh/core"
)

// ErrNoChoices is returned when a provider answers without any completion.
var ErrNoChoices = errors.New("no choices returned")

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolDefinition builds a function ToolDefinition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Request is the normalized model input produced by the model node.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the completion service consumed by the agent core.
type Model interface {
	// Generate returns exactly one assistant message for req. Errors are
	// fatal to the run that issued the request.
	Generate(ctx context.Context, req Request) (core.Message, error)

	// Info returns information about the model implementation.
	Info() Info
}
