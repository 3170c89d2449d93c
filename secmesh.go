// Package secmesh answers natural-language security questions over a Neo4j
// knowledge graph of scan findings. A SecMesh wires one completion service
// and one graph store into the two agent configurations:
//  1. the single-agent analyst (Stream / Ask)
//  2. the four-stage specialist pipeline (StreamPipeline / AskPipeline)
//
// plus graph enrichment (Enrich) and direct tool calls (CallTool) used by
// the MCP surface. The store is borrowed: SecMesh never closes it.
package secmesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/secmesh/agent"
	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/enrich"
	"github.com/hupe1980/secmesh/flow"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/runner"
	"github.com/hupe1980/secmesh/store"
	"github.com/hupe1980/secmesh/tool"
	"github.com/hupe1980/secmesh/tool/security"
)

// Options configures the SecMesh instance.
type Options struct {
	// Store is the graph store. Nil runs without one; store-backed tools
	// then answer with an error text.
	Store store.Store
	// Policy guards every tool call (nil allows all calls).
	Policy *tool.Policy
	// MaxSteps is the step ceiling of single-agent runs.
	MaxSteps int
	// PipelineMaxSteps is the step ceiling of pipeline runs.
	PipelineMaxSteps int
	// MaxConcurrentRuns limits concurrent runs per configuration (0 = unlimited).
	MaxConcurrentRuns int
	// UserID is attached to every run.
	UserID string
	// EnrichLimit caps the candidate pairs of one enrichment run.
	EnrichLimit int
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// SecMesh is the high-level façade.
type SecMesh struct {
	llm      model.Model
	store    store.Store
	tools    *tool.Registry
	calls    *flow.Dispatcher
	analyst  *runner.Runner
	pipeline *runner.Runner
	enricher *enrich.Enricher
	userID   string
	logger   logging.Logger
}

// New creates a SecMesh around llm.
func New(llm model.Model, optFns ...func(o *Options)) (*SecMesh, error) {
	if llm == nil {
		return nil, errors.New("secmesh: model is required")
	}

	opts := Options{
		MaxSteps:         agent.DefaultAnalystMaxSteps,
		PipelineMaxSteps: agent.DefaultPipelineMaxSteps,
		UserID:           "anonymous",
		EnrichLimit:      enrich.DefaultLimit,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	tools, err := security.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("secmesh: %w", err)
	}

	analyst, err := agent.NewAnalyst(llm, tools, func(o *agent.Options) {
		o.MaxSteps = opts.MaxSteps
		o.Policy = opts.Policy
		o.Logger = logger
	})
	if err != nil {
		return nil, fmt.Errorf("secmesh: %w", err)
	}

	pipeline, err := agent.NewPipeline(llm, tools, func(o *agent.Options) {
		o.MaxSteps = opts.PipelineMaxSteps
		o.Policy = opts.Policy
		o.Logger = logger
	})
	if err != nil {
		return nil, fmt.Errorf("secmesh: %w", err)
	}

	runnerOpts := func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.UserID = opts.UserID
		o.Logger = logger
	}

	return &SecMesh{
		llm:      llm,
		store:    opts.Store,
		tools:    tools,
		calls:    flow.NewDispatcher(tools, opts.Policy),
		analyst:  runner.New(analyst, opts.Store, runnerOpts),
		pipeline: runner.New(pipeline, opts.Store, runnerOpts),
		enricher: enrich.New(llm, opts.Store, func(o *enrich.Options) {
			o.Limit = opts.EnrichLimit
			o.Logger = logger
		}),
		userID: opts.UserID,
		logger: logger,
	}, nil
}

// Tools returns the full tool catalog.
func (m *SecMesh) Tools() *tool.Registry { return m.tools }

// Model returns the completion service.
func (m *SecMesh) Model() model.Model { return m.llm }

// Stream starts a single-agent run.
func (m *SecMesh) Stream(ctx context.Context, req runner.Request) *runner.Stream {
	return m.analyst.Stream(ctx, req)
}

// StreamPipeline starts a multi-agent run.
func (m *SecMesh) StreamPipeline(ctx context.Context, req runner.Request) *runner.Stream {
	return m.pipeline.Stream(ctx, req)
}

// Ask runs the analyst to completion.
func (m *SecMesh) Ask(ctx context.Context, req runner.Request) (*runner.Answer, error) {
	return m.analyst.Ask(ctx, req)
}

// AskPipeline runs the pipeline to completion and returns its report.
func (m *SecMesh) AskPipeline(ctx context.Context, req runner.Request) (*runner.Answer, error) {
	return m.pipeline.Ask(ctx, req)
}

// Enrich links related findings in the graph.
func (m *SecMesh) Enrich(ctx context.Context) (*enrich.Report, error) {
	return m.enricher.Run(ctx)
}

// Ping verifies store connectivity.
func (m *SecMesh) Ping(ctx context.Context) error {
	if m.store == nil {
		return store.ErrNoStore
	}
	if p, ok := m.store.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// CallTool runs one tool outside an agent run through the dispatch node,
// so unknown tools, validation, policy and handler failures surface as
// result text exactly as they do inside runs.
func (m *SecMesh) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	exec, err := core.NewExecutionContext(core.NewID(), func(o *core.ExecutionContextOptions) {
		o.Store = m.store
		o.UserID = m.userID
		o.Logger = m.logger
	})
	if err != nil {
		return "", err
	}

	call, err := toolCall(name, args)
	if err != nil {
		return "", err
	}

	results, err := m.calls.Dispatch(ctx, exec, core.NewAIMessage("", call))
	if err != nil {
		return "", err
	}

	return results[0].Content, nil
}

// Shutdown cancels every active run.
func (m *SecMesh) Shutdown() {
	m.analyst.CancelAll()
	m.pipeline.CancelAll()
}

func toolCall(name string, args map[string]any) (core.ToolCall, error) {
	raw := "{}"
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return core.ToolCall{}, fmt.Errorf("encode arguments for %s: %w", name, err)
		}
		raw = string(b)
	}
	return core.ToolCall{Name: name, Arguments: raw}, nil
}
