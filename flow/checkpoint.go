package flow

import (
	"context"
	"iter"

	"github.com/hupe1980/secmesh/core"
)

// Node identifies the node that produced a Checkpoint.
type Node uint8

const (
	// NodeModel is the model-invocation node.
	NodeModel Node = iota + 1
	// NodeTools is the tool-dispatch node.
	NodeTools
)

// String returns the node name.
func (n Node) String() string {
	switch n {
	case NodeModel:
		return "model"
	case NodeTools:
		return "tools"
	default:
		return "unknown"
	}
}

// Checkpoint is the control-flow event yielded after a node completes.
type Checkpoint struct {
	Node Node
	// Stage is the active stage in multi-agent runs, StageUnset otherwise.
	Stage core.Stage
	// Message is the AI message produced by the model node, or the AI
	// message whose calls were dispatched by the tools node.
	Message core.Message
	// Results holds one ToolResult per dispatched call, in call order.
	Results []core.Message
}

// Executor drives one run. The sequence ends after the terminal checkpoint
// or after the first error, which is fatal to the run.
type Executor interface {
	Steps(ctx context.Context, state *core.State, limiter *core.StepLimiter) iter.Seq2[Checkpoint, error]
}
