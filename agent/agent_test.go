package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/flow"
	"github.com/hupe1980/secmesh/internal/testutil"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/store"
	"github.com/hupe1980/secmesh/tool"
	"github.com/hupe1980/secmesh/tool/security"
)

func catalog(t *testing.T) *tool.Registry {
	t.Helper()

	reg, err := security.NewRegistry()
	require.NoError(t, err)

	return reg
}

func run(t *testing.T, a Agent, state *core.State, limiter *core.StepLimiter) ([]flow.Checkpoint, error) {
	t.Helper()

	var cps []flow.Checkpoint
	for cp, err := range a.Steps(context.Background(), state, limiter) {
		if err != nil {
			return cps, err
		}
		cps = append(cps, cp)
	}

	return cps, nil
}

// stageOf resolves the specialist a request was addressed to from its system prompt.
func stageOf(req model.Request) core.Stage {
	if len(req.Messages) == 0 || req.Messages[0].Role != core.RoleSystem {
		return core.StageUnset
	}
	for _, s := range core.SpecialistStages() {
		if req.Messages[0].Content == StagePrompt(s) {
			return s
		}
	}
	return core.StageUnset
}

func toolNames(req model.Request) []string {
	names := make([]string, 0, len(req.Tools))
	for _, d := range req.Tools {
		names = append(names, d.Function.Name)
	}
	return names
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "single", ModeSingle.String())
	assert.Equal(t, "multi", ModeMulti.String())
	assert.Equal(t, "unknown", Mode(0).String())
}

func TestPrompts(t *testing.T) {
	for _, s := range core.SpecialistStages() {
		assert.NotEmpty(t, StagePrompt(s), s.String())
		assert.NotEmpty(t, Activity(s), s.String())
		assert.True(t, strings.HasPrefix(StagePrompt(s), "You are a "), s.String())
	}

	assert.Empty(t, StagePrompt(core.StageEnd))
	assert.Contains(t, AnalystPrompt, "(Finding)-[:HAS_VULNERABILITY]->(Vulnerability)")
	assert.Contains(t, AnalystPrompt, "explain_vector")
	assert.Contains(t, AnalystPrompt, "query_neo4j")
}

func TestNewAnalyst(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")

	t.Run("defaults", func(t *testing.T) {
		a, err := NewAnalyst(llm, catalog(t))
		require.NoError(t, err)

		assert.Equal(t, "analyst", a.Name())
		assert.Equal(t, ModeSingle, a.Mode())
		assert.Equal(t, DefaultAnalystMaxSteps, a.MaxSteps())
		assert.Equal(t, []string{security.VectorToolName, security.QueryToolName}, a.Tools().Names())
	})

	t.Run("max steps override", func(t *testing.T) {
		a, err := NewAnalyst(llm, catalog(t), func(o *Options) { o.MaxSteps = 7 })
		require.NoError(t, err)
		assert.Equal(t, 7, a.MaxSteps())
	})

	t.Run("missing tool", func(t *testing.T) {
		reg := tool.MustRegistry(security.NewVectorTool())
		_, err := NewAnalyst(llm, reg)
		require.Error(t, err)
		assert.ErrorIs(t, err, tool.ErrUnknownTool)
	})

	t.Run("nil model", func(t *testing.T) {
		_, err := NewAnalyst(nil, catalog(t))
		require.Error(t, err)
	})
}

func TestAnalyst_Run(t *testing.T) {
	s := store.NewMockStore(testutil.CountRows(7))
	llm := model.NewMockModel("mock", "mock").
		AddResponse(testutil.AI().Call(security.QueryToolName, map[string]any{"query": "MATCH (f:Finding) RETURN count(f) AS count"}).Build()).
		AddResponse(testutil.Final("There are 7 findings."))

	a, err := NewAnalyst(llm, catalog(t))
	require.NoError(t, err)

	state := testutil.NewState(t, "How many findings are in the database?", s)
	cps, err := run(t, a, state, core.NewStepLimiter(a.MaxSteps()))
	require.NoError(t, err)
	require.Len(t, cps, 3)

	for _, cp := range cps {
		assert.Equal(t, core.StageUnset, cp.Stage)
	}

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, AnalystPrompt, reqs[0].Messages[0].Content)
	assert.Equal(t, []string{security.VectorToolName, security.QueryToolName}, toolNames(reqs[0]))
}

func TestPipeline_NoToolCallsCompletesEveryStage(t *testing.T) {
	llm := model.NewMockModel("mock", "mock").SetResponder(func(req model.Request) (core.Message, error) {
		return testutil.Final(stageOf(req).String() + " done"), nil
	})

	p, err := NewPipeline(llm, catalog(t))
	require.NoError(t, err)
	assert.Equal(t, ModeMulti, p.Mode())
	assert.Equal(t, DefaultPipelineMaxSteps, p.MaxSteps())

	state := testutil.NewState(t, "Assess the findings", nil)
	limiter := core.NewStepLimiter(p.MaxSteps())

	cps, err := run(t, p, state, limiter)
	require.NoError(t, err)
	require.Len(t, cps, 4)

	for i, s := range core.SpecialistStages() {
		assert.Equal(t, flow.NodeModel, cps[i].Node)
		assert.Equal(t, s, cps[i].Stage)
		assert.Equal(t, s.String()+" done", cps[i].Message.Content)

		res := state.Exec.Results(s)
		assert.Equal(t, s.String()+" done", res[ResultSummary])
		assert.Equal(t, 0, res[ResultToolCalls])
	}

	assert.Equal(t, core.StageEnd, state.Exec.Stage())
	assert.Equal(t, 4, limiter.Count())
}

func TestPipeline_ToolsKeepTheStage(t *testing.T) {
	s := store.NewMockStore(func(query string, params map[string]any) ([]store.Record, error) {
		return []store.Record{store.RecordFromPairs("severity", "HIGH", "finding_id", params["finding_id"])}, nil
	})

	analysisTurns := 0
	llm := model.NewMockModel("mock", "mock").SetResponder(func(req model.Request) (core.Message, error) {
		stage := stageOf(req)
		if stage == core.StageAnalysis && analysisTurns == 0 {
			analysisTurns++
			return testutil.AI().
				Call(security.AnalyzeVulnerabilitySeverity, map[string]any{"finding_id": "F-1"}).
				Call(security.QueryToolName, map[string]any{"query": "MATCH (f:Finding) RETURN f.id"}).
				Build(), nil
		}
		return testutil.Final(stage.String() + " done"), nil
	})

	p, err := NewPipeline(llm, catalog(t))
	require.NoError(t, err)

	state := testutil.NewState(t, "Assess F-1", s)
	cps, err := run(t, p, state, core.NewStepLimiter(p.MaxSteps()))
	require.NoError(t, err)
	require.Len(t, cps, 6)

	assert.Equal(t, flow.NodeModel, cps[0].Node)
	assert.Equal(t, flow.NodeTools, cps[1].Node)
	assert.Equal(t, core.StageAnalysis, cps[1].Stage)
	require.Len(t, cps[1].Results, 2)
	assert.Contains(t, cps[1].Results[0].Content, "F-1")
	assert.Equal(t, flow.NodeModel, cps[2].Node)
	assert.Equal(t, core.StageAnalysis, cps[2].Stage)
	assert.Equal(t, "analysis done", cps[2].Message.Content)

	var stages []core.Stage
	for _, cp := range cps {
		stages = append(stages, cp.Stage)
	}
	assert.Equal(t, []core.Stage{
		core.StageAnalysis, core.StageAnalysis, core.StageAnalysis,
		core.StageCorrelation, core.StageRisk, core.StageRecommendation,
	}, stages)

	assert.Equal(t, 2, state.Exec.Results(core.StageAnalysis)[ResultToolCalls])
	assert.Equal(t, 0, state.Exec.Results(core.StageCorrelation)[ResultToolCalls])
	assert.Equal(t, 2, s.Opened())
	assert.Equal(t, 2, s.Closed())
}

func TestPipeline_Decide(t *testing.T) {
	p, err := NewPipeline(model.NewMockModel("mock", "mock"), catalog(t))
	require.NoError(t, err)

	state := testutil.NewState(t, "Assess F-1", nil)
	stage, err := p.advance(state.Exec)
	require.NoError(t, err)
	require.Equal(t, core.StageAnalysis, stage)

	calling := testutil.AI().Call(security.QueryToolName, map[string]any{"query": "RETURN 1"}).Build()

	tests := []struct {
		name string
		cp   flow.Checkpoint
		want core.Stage
	}{
		{"model turn with tool calls keeps the stage", flow.Checkpoint{Node: flow.NodeModel, Stage: stage, Message: calling}, core.StageAnalysis},
		{"tool results keep the stage", flow.Checkpoint{Node: flow.NodeTools, Stage: stage, Message: calling}, core.StageAnalysis},
		{"final answer advances", flow.Checkpoint{Node: flow.NodeModel, Stage: stage, Message: testutil.Final("done")}, core.StageCorrelation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.decide(state.Exec, tt.cp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, state.Exec.Stage())
		})
	}
}

func TestPipeline_OffersStageTools(t *testing.T) {
	llm := model.NewMockModel("mock", "mock").SetResponder(func(req model.Request) (core.Message, error) {
		return testutil.Final("ok"), nil
	})

	p, err := NewPipeline(llm, catalog(t))
	require.NoError(t, err)

	_, err = run(t, p, testutil.NewState(t, "go", nil), core.NewStepLimiter(0))
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 4)

	for i, s := range core.SpecialistStages() {
		want, err := security.StageTools(s)
		require.NoError(t, err)

		assert.Equal(t, s, stageOf(reqs[i]))
		assert.Equal(t, want, toolNames(reqs[i]))

		reg, ok := p.Tools(s)
		require.True(t, ok)
		assert.Equal(t, want, reg.Names())
	}

	_, ok := p.Tools(core.StageEnd)
	assert.False(t, ok)
}

func TestPipeline_SpecialistSeesEarlierStages(t *testing.T) {
	llm := model.NewMockModel("mock", "mock").SetResponder(func(req model.Request) (core.Message, error) {
		return testutil.Final(stageOf(req).String() + " summary"), nil
	})

	p, err := NewPipeline(llm, catalog(t))
	require.NoError(t, err)

	_, err = run(t, p, testutil.NewState(t, "go", nil), core.NewStepLimiter(0))
	require.NoError(t, err)

	last := llm.Requests()[3]
	// system, human, three earlier stage summaries
	require.Len(t, last.Messages, 5)
	assert.Equal(t, "risk summary", last.Messages[4].Content)
}

func TestPipeline_StepCeiling(t *testing.T) {
	llm := model.NewMockModel("mock", "mock").SetResponder(func(req model.Request) (core.Message, error) {
		return testutil.AI().Call(security.QueryToolName, map[string]any{"query": "RETURN 1"}).Build(), nil
	})

	p, err := NewPipeline(llm, catalog(t), func(o *Options) { o.MaxSteps = 3 })
	require.NoError(t, err)

	state := testutil.NewState(t, "loop", store.NewMockStore(testutil.CountRows(1)))
	cps, err := run(t, p, state, core.NewStepLimiter(p.MaxSteps()))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
	assert.Len(t, cps, 3)
	assert.Equal(t, core.StageAnalysis, state.Exec.Stage())
}

func TestPipeline_ModelErrorIsFatal(t *testing.T) {
	llm := model.NewMockModel("mock", "mock").
		AddResponse(testutil.Final("analysis done")).
		AddError(assert.AnError)

	p, err := NewPipeline(llm, catalog(t))
	require.NoError(t, err)

	state := testutil.NewState(t, "go", nil)
	cps, err := run(t, p, state, core.NewStepLimiter(0))
	require.ErrorIs(t, err, assert.AnError)
	assert.Len(t, cps, 1)
	assert.Equal(t, core.StageCorrelation, state.Exec.Stage())
}

func TestPipeline_RejectsStartedState(t *testing.T) {
	p, err := NewPipeline(model.NewMockModel("mock", "mock"), catalog(t))
	require.NoError(t, err)

	state := testutil.NewState(t, "go", nil)
	_, err = state.Exec.Advance()
	require.NoError(t, err)

	_, err = run(t, p, state, core.NewStepLimiter(0))
	assert.ErrorIs(t, err, ErrStageInProgress)
}

func TestPipeline_StopPulling(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")

	p, err := NewPipeline(llm, catalog(t))
	require.NoError(t, err)

	state := testutil.NewState(t, "go", nil)
	for cp, err := range p.Steps(context.Background(), state, core.NewStepLimiter(0)) {
		require.NoError(t, err)
		assert.Equal(t, core.StageAnalysis, cp.Stage)
		break
	}

	assert.Len(t, llm.Requests(), 1)
	assert.Equal(t, core.StageAnalysis, state.Exec.Stage())
}

func TestNewPipeline_MissingStageTool(t *testing.T) {
	reg := tool.MustRegistry(security.NewQueryTool(), security.NewVectorTool())

	_, err := NewPipeline(model.NewMockModel("mock", "mock"), reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrUnknownTool)
	assert.Contains(t, err.Error(), "analysis")
}
