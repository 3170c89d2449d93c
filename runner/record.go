package runner

import (
	"fmt"
	"strings"

	"github.com/hupe1980/secmesh/agent"
	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/flow"
)

// Step kinds of the single-agent loop and of the pipeline.
const (
	StepThought       = "Thought"
	StepAction        = "Action"
	StepFinalAnswer   = "Final Answer"
	StepToolExecution = "Tool Execution"
	StepError         = "Error"
)

// Agent tags of pipeline records that do not belong to a stage.
const (
	AgentTools = "tools"
	AgentError = "error"
)

// StepRecord is one externally visible transition of a run.
type StepRecord struct {
	Step            string  `json:"step"`
	Content         string  `json:"content"`
	TraceID         string  `json:"trace_id"`
	ExternalTraceID *string `json:"external_trace_id"`
	Agent           string  `json:"agent,omitempty"`
}

// IsTerminal reports whether r ends a stream: an error, the single-agent
// answer or the recommendation stage completion.
func (r StepRecord) IsTerminal() bool {
	switch r.Step {
	case StepError, StepFinalAnswer:
		return true
	}
	return r.Step == core.StageRecommendation.Title()+" Complete"
}

// describe maps a checkpoint to the step kind, content and agent tag of
// its record.
func describe(mode agent.Mode, cp flow.Checkpoint) (step, content, agentTag string) {
	if mode == agent.ModeMulti {
		return describeStage(cp)
	}

	switch {
	case cp.Node == flow.NodeTools:
		return StepAction, actionContent(cp.Results), ""
	case cp.Message.HasToolCalls():
		return StepThought, thoughtContent(cp.Message.ToolCalls), ""
	default:
		return StepFinalAnswer, cp.Message.Content, ""
	}
}

func describeStage(cp flow.Checkpoint) (step, content, agentTag string) {
	title := cp.Stage.Title()

	switch {
	case cp.Node == flow.NodeTools:
		parts := make([]string, 0, len(cp.Results))
		for _, res := range cp.Results {
			parts = append(parts, "🛠️ "+res.Content)
		}
		return StepToolExecution, strings.Join(parts, "\n\n"), AgentTools
	case cp.Message.HasToolCalls():
		names := make([]string, 0, len(cp.Message.ToolCalls))
		for _, tc := range cp.Message.ToolCalls {
			names = append(names, tc.Name)
		}
		return title + " Agent",
			fmt.Sprintf("%s (%s)", agent.Activity(cp.Stage), strings.Join(names, ", ")),
			cp.Stage.String()
	default:
		return title + " Complete", cp.Message.Content, cp.Stage.String()
	}
}

func thoughtContent(calls []core.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, tc := range calls {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		parts = append(parts, fmt.Sprintf("I should use the tool %s with the arguments %s.", tc.Name, args))
	}
	return strings.Join(parts, " ")
}

func actionContent(results []core.Message) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, fmt.Sprintf("Output of tool %s: %s", res.Name, res.Content))
	}
	return strings.Join(parts, "\n\n")
}

func errorContent(err error) string {
	return fmt.Sprintf("An error occurred: %v", err)
}
