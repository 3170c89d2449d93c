package agent

import (
	"context"
	"fmt"
	"iter"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/flow"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/tool"
	"github.com/hupe1980/secmesh/tool/security"
)

// Analyst is the single-agent configuration.
type Analyst struct {
	loop     *flow.Loop
	tools    *tool.Registry
	maxSteps int
}

// NewAnalyst builds the analyst over the explain_vector and query_neo4j
// tools of catalog.
func NewAnalyst(llm model.Model, catalog *tool.Registry, optFns ...func(o *Options)) (*Analyst, error) {
	if llm == nil {
		return nil, fmt.Errorf("analyst: model is required")
	}

	opts := applyOptions(DefaultAnalystMaxSteps, optFns)

	tools, err := catalog.Subset(security.AnalystTools...)
	if err != nil {
		return nil, fmt.Errorf("analyst: %w", err)
	}

	node := flow.NewModelNode("analyst", llm, AnalystPrompt, tools)

	opts.Logger.Debug("agent.analyst.created", "tools", tools.Names(), "max_steps", opts.MaxSteps)

	return &Analyst{
		loop:     flow.NewLoop(node, flow.NewDispatcher(tools, opts.Policy)),
		tools:    tools,
		maxSteps: opts.MaxSteps,
	}, nil
}

// Name returns "analyst".
func (a *Analyst) Name() string { return "analyst" }

// Mode returns ModeSingle.
func (a *Analyst) Mode() Mode { return ModeSingle }

// MaxSteps returns the step ceiling.
func (a *Analyst) MaxSteps() int { return a.maxSteps }

// Tools returns the analyst's tool subset.
func (a *Analyst) Tools() *tool.Registry { return a.tools }

// Steps implements flow.Executor.
func (a *Analyst) Steps(ctx context.Context, state *core.State, limiter *core.StepLimiter) iter.Seq2[flow.Checkpoint, error] {
	return a.loop.Steps(ctx, state, limiter)
}
