// Package tool implements the tool subsystem that lets agents invoke named,
// schema-described operations. Tools are collected into a closed Registry
// resolved once at startup; dispatch is a map lookup plus argument
// validation, never reflective access.
package tool

import (
	"errors"
	"fmt"
)

// Tool is a named operation the model may request.
//
// Implementations should:
//   - Provide a unique snake_case name
//   - Describe when to use the tool (the description briefs the model)
//   - Declare a JSON schema for their arguments
//   - Be safe for concurrent use by multiple runs
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns the JSON schema describing the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool. Arguments have already been validated against
	// Parameters. The returned text is handed back to the model verbatim.
	Call(toolCtx *Context, args map[string]any) (string, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeExecution    = "EXECUTION_ERROR"
	CodePolicyDenied = "POLICY_DENIED"
)

var (
	// ErrUnknownTool is returned when a name is not part of a registry.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDuplicateTool is returned when two tools share a name.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
