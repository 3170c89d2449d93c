package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/internal/telemetry"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/tool"
)

// ErrNoToolCalls is returned when dispatch is asked to run a message without calls.
var ErrNoToolCalls = errors.New("message carries no tool calls")

// Dispatcher is the tool-dispatch node. Calls run sequentially in request
// order; each gets its own tool.Context whose read session is released on
// every exit path. Tool-level failures never abort the run: they become
// ToolResult text the model can react to.
type Dispatcher struct {
	tools  *tool.Registry
	policy *tool.Policy
}

// NewDispatcher creates a dispatcher over the active registry. policy may be nil.
func NewDispatcher(tools *tool.Registry, policy *tool.Policy) *Dispatcher {
	return &Dispatcher{tools: tools, policy: policy}
}

// Tools returns the active registry.
func (d *Dispatcher) Tools() *tool.Registry { return d.tools }

// Dispatch executes every call of msg and returns one ToolResult per call,
// preserving call order.
func (d *Dispatcher) Dispatch(ctx context.Context, exec *core.ExecutionContext, msg core.Message) ([]core.Message, error) {
	if len(msg.ToolCalls) == 0 {
		return nil, ErrNoToolCalls
	}

	results := make([]core.Message, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		content := d.execute(ctx, exec, call)
		results = append(results, core.NewToolResultMessage(call.ID, call.Name, content))
	}

	return results, nil
}

// execute runs one call and renders its outcome as text.
func (d *Dispatcher) execute(ctx context.Context, exec *core.ExecutionContext, call core.ToolCall) string {
	ctx, span := telemetry.StartSpan(ctx, "flow.tool",
		telemetry.String("tool", call.Name),
		telemetry.String("call_id", call.ID),
	)
	defer span.End()

	logger := exec.Logger()

	impl, ok := d.tools.Lookup(call.Name)
	if !ok {
		logger.Warn("tool.dispatch.unknown", "tool", call.Name, "call_id", call.ID)
		telemetry.CountToolCall(ctx, call.Name, "unknown")
		telemetry.RecordError(span, tool.ErrUnknownTool)

		return fmt.Sprintf("Unknown tool: %s", call.Name)
	}

	toolCtx := tool.NewContext(ctx, exec, call.ID)
	defer func() {
		if err := toolCtx.Release(); err != nil {
			logger.Warn("tool.session.release_failed", "tool", call.Name, "call_id", call.ID, "error", err.Error())
		}
	}()

	start := time.Now()
	out, err := d.call(toolCtx, exec, impl, call)

	logging.LogToolCall(logger, call.Name, call.ID, time.Since(start), err)

	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.CountToolCall(ctx, call.Name, "error")

		return fmt.Sprintf("Error executing tool %s: %s", call.Name, errorText(err))
	}

	telemetry.SetOK(span)
	telemetry.CountToolCall(ctx, call.Name, "ok")

	return out
}

func (d *Dispatcher) call(toolCtx *tool.Context, exec *core.ExecutionContext, impl tool.Tool, call core.ToolCall) (out string, err error) {
	args, err := call.Args()
	if err != nil {
		return "", tool.NewToolError(call.Name, err.Error(), tool.CodeValidation)
	}

	if err := d.tools.Validate(call.Name, args); err != nil {
		return "", err
	}

	if d.policy != nil {
		allowed, err := d.policy.Allow(call.Name, args, exec.Stage().String())
		if err != nil {
			return "", tool.NewToolError(call.Name, err.Error(), tool.CodePolicyDenied)
		}
		if !allowed {
			exec.LogWarn("tool.dispatch.denied", "tool", call.Name, "call_id", call.ID, "policy", d.policy.String())
			return "", tool.NewToolError(call.Name, "call rejected by tool policy", tool.CodePolicyDenied)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			exec.LogError("tool.dispatch.panic", "tool", call.Name, "call_id", call.ID, "recover", r, "stack", string(debug.Stack()))
			out, err = "", fmt.Errorf("panic: %v", r)
		}
	}()

	return impl.Call(toolCtx, args)
}

func errorText(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}
