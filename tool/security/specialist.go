package security

import (
	"github.com/hupe1980/secmesh/tool"
)

// FindingArgs select one finding.
type FindingArgs struct {
	FindingID string `json:"finding_id" description:"The finding identifier"`
}

// CWEArgs select vulnerabilities by CWE identifier.
type CWEArgs struct {
	CWEID string `json:"cwe_id" description:"The CWE identifier, e.g. CWE-79"`
}

// AssetArgs select one asset by url, path or image.
type AssetArgs struct {
	AssetURL string `json:"asset_url" description:"The asset url, path or image reference"`
}

// NoArgs is the argument struct of parameterless tools.
type NoArgs struct{}

// Specialist tool names.
const (
	AnalyzeVulnerabilitySeverity = "analyze_vulnerability_severity"
	FindSimilarVulnerabilities   = "find_similar_vulnerabilities"
	FindAttackChains             = "find_attack_chains"
	AnalyzeTemporalPatterns      = "analyze_temporal_patterns"
	CalculateRiskScore           = "calculate_risk_score"
	AssessAssetCriticality       = "assess_asset_criticality"
	GenerateMitigationStrategy   = "generate_mitigation_strategy"
	FindPriorityRemediationOrder = "find_priority_remediation_order"
)

// cypherTool is a specialist tool backed by one fixed, parameterized query.
// Tool arguments become query parameters under the same names.
type cypherTool struct {
	name        string
	description string
	args        any
	query       string
}

var specialistTools = []cypherTool{
	{
		name:        AnalyzeVulnerabilitySeverity,
		description: "Analyzes the severity and impact of a specific vulnerability finding.",
		args:        FindingArgs{},
		query: `MATCH (f:Finding {id: $finding_id})-[:HAS_VULNERABILITY]->(v:Vulnerability)
OPTIONAL MATCH (f)-[:AFFECTS]->(a:Asset)
RETURN f.id AS finding_id, v.title AS vulnerability, v.severity AS severity,
       v.description AS description, v.vector AS vector,
       COALESCE(a.url, a.path, a.image, 'Unknown') AS asset_url`,
	},
	{
		name:        FindSimilarVulnerabilities,
		description: "Finds vulnerabilities with the same CWE ID to identify patterns.",
		args:        CWEArgs{},
		query: `MATCH (f:Finding)-[:HAS_VULNERABILITY]->(v:Vulnerability {cwe_id: $cwe_id})
RETURN f.id AS finding_id, v.title AS vulnerability, v.severity AS severity
ORDER BY v.severity DESC`,
	},
	{
		name:        FindAttackChains,
		description: "Identifies potential attack chains starting from a specific finding.",
		args:        FindingArgs{},
		query: `MATCH (f:Finding {id: $finding_id})-[:HAS_VULNERABILITY]->(v:Vulnerability)
MATCH (f)-[:AFFECTS]->(a:Asset)
OPTIONAL MATCH (a)<-[:AFFECTS]-(f2:Finding)-[:HAS_VULNERABILITY]->(v2:Vulnerability)
WHERE f2.id <> f.id
RETURN f.id AS source_finding, v.title AS source_vuln, a.url AS target_asset,
       f2.id AS related_finding, v2.title AS related_vuln`,
	},
	{
		name:        AnalyzeTemporalPatterns,
		description: "Analyzes temporal patterns in vulnerability discoveries.",
		args:        NoArgs{},
		query: `MATCH (f:Finding)
WITH f.timestamp AS scan_time, count(f) AS finding_count
ORDER BY scan_time
RETURN scan_time, finding_count
LIMIT 10`,
	},
	{
		name:        CalculateRiskScore,
		description: "Calculates a risk score for a specific finding based on multiple factors.",
		args:        FindingArgs{},
		query: `MATCH (f:Finding {id: $finding_id})-[:HAS_VULNERABILITY]->(v:Vulnerability)
OPTIONAL MATCH (f)-[:AFFECTS]->(a:Asset)
WITH f, v, a,
     CASE v.severity
       WHEN 'CRITICAL' THEN 10
       WHEN 'HIGH' THEN 7
       WHEN 'MEDIUM' THEN 4
       WHEN 'LOW' THEN 1
       ELSE 0
     END AS severity_score
RETURN f.id AS finding_id, v.title AS vulnerability, v.severity AS severity,
       severity_score AS risk_score,
       COALESCE(a.url, a.path, a.image, 'Unknown') AS affected_asset`,
	},
	{
		name:        AssessAssetCriticality,
		description: "Assesses the criticality of an asset based on vulnerability exposure.",
		args:        AssetArgs{},
		query: `MATCH (f:Finding)-[:AFFECTS]->(a:Asset)
WHERE a.url = $asset_url OR a.path = $asset_url OR a.image = $asset_url
MATCH (f)-[:HAS_VULNERABILITY]->(v:Vulnerability)
WITH a, count(f) AS vulnerability_count,
     sum(CASE v.severity WHEN 'CRITICAL' THEN 1 WHEN 'HIGH' THEN 1 ELSE 0 END) AS high_critical_count
RETURN COALESCE(a.url, a.path, a.image, 'Unknown') AS asset,
       vulnerability_count, high_critical_count,
       CASE
         WHEN high_critical_count > 0 THEN 'CRITICAL'
         WHEN vulnerability_count > 3 THEN 'HIGH'
         WHEN vulnerability_count > 1 THEN 'MEDIUM'
         ELSE 'LOW'
       END AS asset_criticality`,
	},
	{
		name:        GenerateMitigationStrategy,
		description: "Generates mitigation strategies for vulnerabilities with specific CWE IDs.",
		args:        CWEArgs{},
		query: `MATCH (f:Finding)-[:HAS_VULNERABILITY]->(v:Vulnerability {cwe_id: $cwe_id})
RETURN DISTINCT v.cwe_id AS cwe_id, v.title AS vulnerability_title,
       v.description AS description, v.vector AS attack_vector
LIMIT 1`,
	},
	{
		name:        FindPriorityRemediationOrder,
		description: "Finds the optimal order for remediating vulnerabilities based on risk and impact.",
		args:        NoArgs{},
		query: `MATCH (f:Finding)-[:HAS_VULNERABILITY]->(v:Vulnerability)
OPTIONAL MATCH (f)-[:AFFECTS]->(a:Asset)
WITH f, v, a,
     CASE v.severity
       WHEN 'CRITICAL' THEN 4
       WHEN 'HIGH' THEN 3
       WHEN 'MEDIUM' THEN 2
       WHEN 'LOW' THEN 1
       ELSE 0
     END AS priority_score
RETURN f.id AS finding_id, v.title AS vulnerability, v.severity AS severity,
       priority_score, COALESCE(a.url, a.path, a.image, 'Unknown') AS affected_asset
ORDER BY priority_score DESC, f.id
LIMIT 10`,
	},
}

func (c cypherTool) build() tool.Tool {
	query := c.query
	return tool.NewFunctionToolFromStruct(c.name, c.description, c.args,
		func(tc *tool.Context, args map[string]any) (string, error) {
			params := make(map[string]any, len(args))
			for k, v := range args {
				params[k] = v
			}
			return runQuery(tc, query, params), nil
		},
	)
}

// SpecialistQuery returns the Cypher statement behind specialist tool name.
func SpecialistQuery(name string) (string, bool) {
	for _, c := range specialistTools {
		if c.name == name {
			return c.query, true
		}
	}
	return "", false
}
