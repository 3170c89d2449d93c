package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/flow"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/tool"
	"github.com/hupe1980/secmesh/tool/security"
)

// Result bucket keys written by the pipeline.
const (
	ResultSummary   = "summary"
	ResultToolCalls = "tool_calls"
)

// ErrStageInProgress is returned when a pipeline is started on a state
// whose stage tag has already left StageUnset.
var ErrStageInProgress = errors.New("pipeline state already entered a stage")

type specialist struct {
	node  *flow.ModelNode
	tools *flow.Dispatcher
}

// Pipeline is the multi-agent configuration: an orchestrator plus one
// specialist per stage.
type Pipeline struct {
	specialists map[core.Stage]*specialist
	maxSteps    int
}

// NewPipeline builds the four specialists. Every stage's tool subset is
// resolved against catalog up front, so a missing tool fails construction
// instead of a run.
func NewPipeline(llm model.Model, catalog *tool.Registry, optFns ...func(o *Options)) (*Pipeline, error) {
	if llm == nil {
		return nil, fmt.Errorf("pipeline: model is required")
	}

	opts := applyOptions(DefaultPipelineMaxSteps, optFns)

	p := &Pipeline{
		specialists: make(map[core.Stage]*specialist, 4),
		maxSteps:    opts.MaxSteps,
	}

	for _, stage := range core.SpecialistStages() {
		names, err := security.StageTools(stage)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}

		tools, err := catalog.Subset(names...)
		if err != nil {
			return nil, fmt.Errorf("pipeline: stage %s: %w", stage, err)
		}

		p.specialists[stage] = &specialist{
			node:  flow.NewModelNode(stage.String(), llm, StagePrompt(stage), tools),
			tools: flow.NewDispatcher(tools, opts.Policy),
		}

		opts.Logger.Debug("agent.specialist.created", "stage", stage.String(), "tools", names)
	}

	return p, nil
}

// Name returns "pipeline".
func (p *Pipeline) Name() string { return "pipeline" }

// Mode returns ModeMulti.
func (p *Pipeline) Mode() Mode { return ModeMulti }

// MaxSteps returns the step ceiling.
func (p *Pipeline) MaxSteps() int { return p.maxSteps }

// Tools returns the tool subset of a specialist stage.
func (p *Pipeline) Tools(stage core.Stage) (*tool.Registry, bool) {
	sp, ok := p.specialists[stage]
	if !ok {
		return nil, false
	}
	return sp.tools.Tools(), true
}

// Steps implements flow.Executor. Orchestrator decisions are not charged to
// limiter; only specialist turns and tool dispatches are.
func (p *Pipeline) Steps(ctx context.Context, state *core.State, limiter *core.StepLimiter) iter.Seq2[flow.Checkpoint, error] {
	return func(yield func(flow.Checkpoint, error) bool) {
		if s := state.Exec.Stage(); s != core.StageUnset {
			yield(flow.Checkpoint{}, fmt.Errorf("%w: %s", ErrStageInProgress, s))
			return
		}

		stage, err := p.advance(state.Exec)
		if err != nil {
			yield(flow.Checkpoint{}, err)
			return
		}

		calls := 0

		for stage != core.StageEnd {
			sp := p.specialists[stage]

			msg, err := flow.RunModel(ctx, sp.node, state, limiter)
			if err != nil {
				yield(flow.Checkpoint{}, err)
				return
			}

			if flow.Next(msg) == flow.RouteEnd {
				if err := recordStage(state.Exec, stage, msg.Content, calls); err != nil {
					yield(flow.Checkpoint{}, err)
					return
				}
			}

			cp := flow.Checkpoint{Node: flow.NodeModel, Stage: stage, Message: msg}
			if !yield(cp, nil) {
				return
			}

			next, err := p.decide(state.Exec, cp)
			if err != nil {
				yield(flow.Checkpoint{}, err)
				return
			}

			if flow.Next(msg) == flow.RouteTools {
				results, err := flow.RunTools(ctx, sp.tools, state, limiter, msg)
				if err != nil {
					yield(flow.Checkpoint{}, err)
					return
				}

				calls += len(results)

				cp = flow.Checkpoint{Node: flow.NodeTools, Stage: stage, Message: msg, Results: results}
				if !yield(cp, nil) {
					return
				}

				if next, err = p.decide(state.Exec, cp); err != nil {
					yield(flow.Checkpoint{}, err)
					return
				}
			}

			if next != stage {
				calls = 0
			}
			stage = next
		}
	}
}

// decide is the orchestrator decision point, consulted after every
// checkpoint. The stage is kept while its specialist has tool calls
// outstanding or results it has not read yet; otherwise the run moves on.
func (p *Pipeline) decide(exec *core.ExecutionContext, cp flow.Checkpoint) (core.Stage, error) {
	if cp.Node == flow.NodeTools || flow.Next(cp.Message) == flow.RouteTools {
		exec.LogDebug("orchestrator.stage.kept", "stage", cp.Stage.String(), "after", cp.Node.String())
		return cp.Stage, nil
	}

	return p.advance(exec)
}

// advance is the orchestrator decision: move to the successor stage.
func (p *Pipeline) advance(exec *core.ExecutionContext) (core.Stage, error) {
	from := exec.Stage()

	to, err := exec.Advance()
	if err != nil {
		return from, fmt.Errorf("orchestrator: %w", err)
	}

	exec.LogInfo("orchestrator.stage.advanced", "from", from.String(), "to", to.String())

	return to, nil
}

func recordStage(exec *core.ExecutionContext, stage core.Stage, summary string, calls int) error {
	if err := exec.RecordResult(stage, ResultSummary, summary); err != nil {
		return err
	}
	return exec.RecordResult(stage, ResultToolCalls, calls)
}
