package security

import (
	"fmt"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/tool"
)

// AnalystTools are the tools of the single-agent analyst.
var AnalystTools = []string{VectorToolName, QueryToolName}

var stageTools = map[core.Stage][]string{
	core.StageAnalysis:       {AnalyzeVulnerabilitySeverity, FindSimilarVulnerabilities, QueryToolName},
	core.StageCorrelation:    {FindAttackChains, AnalyzeTemporalPatterns, QueryToolName},
	core.StageRisk:           {CalculateRiskScore, AssessAssetCriticality, QueryToolName},
	core.StageRecommendation: {GenerateMitigationStrategy, FindPriorityRemediationOrder, QueryToolName},
}

// Catalog returns every security tool: the query tool, the vector
// explainer and the specialist tools.
func Catalog() []tool.Tool {
	tools := []tool.Tool{NewQueryTool(), NewVectorTool()}
	for _, c := range specialistTools {
		tools = append(tools, c.build())
	}
	return tools
}

// NewRegistry returns a registry over the full catalog.
func NewRegistry() (*tool.Registry, error) {
	return tool.NewRegistry(Catalog()...)
}

// StageTools returns the tool names bound to a specialist stage.
func StageTools(stage core.Stage) ([]string, error) {
	names, ok := stageTools[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no tools", core.ErrInvalidStage, stage)
	}
	return append([]string(nil), names...), nil
}
