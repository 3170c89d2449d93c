package flow

import (
	"context"
	"iter"

	"github.com/hupe1980/secmesh/core"
)

// Loop is the single-agent state machine: Model ⇄ Tools under the router,
// ending when the model answers without tool calls.
type Loop struct {
	model *ModelNode
	tools *Dispatcher
}

// NewLoop creates the single-agent executor.
func NewLoop(model *ModelNode, tools *Dispatcher) *Loop {
	return &Loop{model: model, tools: tools}
}

// Steps implements Executor. Every Model and Tools transition is charged to
// limiter before it runs.
func (l *Loop) Steps(ctx context.Context, state *core.State, limiter *core.StepLimiter) iter.Seq2[Checkpoint, error] {
	return func(yield func(Checkpoint, error) bool) {
		for {
			msg, err := RunModel(ctx, l.model, state, limiter)
			if err != nil {
				yield(Checkpoint{}, err)
				return
			}

			if !yield(Checkpoint{Node: NodeModel, Message: msg}, nil) {
				return
			}

			if Next(msg) == RouteEnd {
				return
			}

			results, err := RunTools(ctx, l.tools, state, limiter, msg)
			if err != nil {
				yield(Checkpoint{}, err)
				return
			}

			if !yield(Checkpoint{Node: NodeTools, Message: msg, Results: results}, nil) {
				return
			}
		}
	}
}

// RunModel performs one charged Model transition and appends its message.
func RunModel(ctx context.Context, node *ModelNode, state *core.State, limiter *core.StepLimiter) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, err
	}

	if err := limiter.Step(); err != nil {
		return core.Message{}, err
	}

	msg, err := node.Invoke(ctx, state)
	if err != nil {
		return core.Message{}, err
	}

	if err := state.Conversation.Append(msg); err != nil {
		return core.Message{}, err
	}

	return msg, nil
}

// RunTools performs one charged Tools transition for msg and appends the results.
func RunTools(ctx context.Context, d *Dispatcher, state *core.State, limiter *core.StepLimiter, msg core.Message) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := limiter.Step(); err != nil {
		return nil, err
	}

	results, err := d.Dispatch(ctx, state.Exec, msg)
	if err != nil {
		return nil, err
	}

	if err := state.Conversation.Append(results...); err != nil {
		return nil, err
	}

	return results, nil
}
