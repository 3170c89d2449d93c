package flow

import (
	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/tool"
)

// RequestProcessor contributes to the model request before it is sent.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request for the given run state.
	ProcessRequest(state *core.State, req *model.Request) error
}

// InstructionsProcessor prefixes the request with the role's system prompt.
type InstructionsProcessor struct {
	Prompt string
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(prompt string) *InstructionsProcessor {
	return &InstructionsProcessor{Prompt: prompt}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest adds the system prompt as first message.
func (p *InstructionsProcessor) ProcessRequest(state *core.State, req *model.Request) error {
	if p.Prompt == "" {
		return nil
	}

	req.Messages = append([]core.Message{core.NewSystemMessage(p.Prompt)}, req.Messages...)

	if state.Exec != nil {
		state.Exec.LogDebug("flow.instructions.applied", "length", len(p.Prompt))
	}

	return nil
}

// HistoryProcessor appends the run's conversation, dropping system messages
// so only the active role's prompt reaches the model.
type HistoryProcessor struct{}

// NewHistoryProcessor creates a new history processor.
func NewHistoryProcessor() *HistoryProcessor { return &HistoryProcessor{} }

// Name returns the processor's identifier.
func (p *HistoryProcessor) Name() string { return "history" }

// ProcessRequest appends the conversation.
func (p *HistoryProcessor) ProcessRequest(state *core.State, req *model.Request) error {
	for _, msg := range state.Conversation.Messages() {
		if msg.Role == core.RoleSystem {
			continue
		}
		req.Messages = append(req.Messages, msg)
	}
	return nil
}

// ToolsProcessor attaches the definitions of a registry.
type ToolsProcessor struct {
	Tools *tool.Registry
}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor(tools *tool.Registry) *ToolsProcessor {
	return &ToolsProcessor{Tools: tools}
}

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets req.Tools.
func (p *ToolsProcessor) ProcessRequest(_ *core.State, req *model.Request) error {
	req.Tools = ToolDefinitions(p.Tools)
	return nil
}

// ToolDefinitions converts the tools of reg into model tool definitions.
func ToolDefinitions(reg *tool.Registry) []model.ToolDefinition {
	if reg == nil || reg.Len() == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, reg.Len())
	for _, t := range reg.Tools() {
		defs = append(defs, model.NewToolDefinition(t.Name(), t.Description(), t.Parameters()))
	}

	return defs
}
