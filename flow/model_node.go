package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/internal/telemetry"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/tool"
)

// ModelNode asks the completion service for the next AI message of a role.
type ModelNode struct {
	name       string
	llm        model.Model
	processors []RequestProcessor
}

// NewModelNode builds the node of a role: its prompt prefixes the
// conversation and tools is the subset offered to the model.
func NewModelNode(name string, llm model.Model, prompt string, tools *tool.Registry) *ModelNode {
	return &ModelNode{
		name: name,
		llm:  llm,
		processors: []RequestProcessor{
			NewHistoryProcessor(),
			NewInstructionsProcessor(prompt),
			NewToolsProcessor(tools),
		},
	}
}

// Name returns the role name of the node.
func (n *ModelNode) Name() string { return n.name }

// Invoke produces exactly one AI message. Any failure is fatal to the run;
// the node never retries.
func (n *ModelNode) Invoke(ctx context.Context, state *core.State) (core.Message, error) {
	req := new(model.Request)

	for _, p := range n.processors {
		if err := p.ProcessRequest(state, req); err != nil {
			return core.Message{}, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	info := n.llm.Info()

	ctx, span := telemetry.StartSpan(ctx, "flow.model",
		telemetry.String("role", n.name),
		telemetry.String("model", info.Name),
		telemetry.Int("messages", len(req.Messages)),
	)

	start := time.Now()
	msg, err := n.llm.Generate(ctx, *req)
	if err == nil && msg.Role != core.RoleAI {
		err = fmt.Errorf("expected %q message, got %q", core.RoleAI, msg.Role)
	}

	telemetry.End(span, err)
	telemetry.CountModelCall(ctx, info.Provider, err)

	logging.LogModelCall(state.Exec.Logger(), n.name, info.Name, len(msg.ToolCalls), time.Since(start), err)

	if err != nil {
		return core.Message{}, fmt.Errorf("model invocation failed: %w", err)
	}

	return msg, nil
}
