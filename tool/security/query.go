package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hupe1980/secmesh/store"
	"github.com/hupe1980/secmesh/tool"
)

// QueryToolName is the name of the free-form graph query tool.
const QueryToolName = "query_neo4j"

const (
	noResultsText   = "No results found for the query."
	noStoreText     = "Error: Neo4j database driver not available."
	queryErrorTempl = "Error executing Neo4j query: %v"
)

// QueryArgs are the arguments of query_neo4j.
type QueryArgs struct {
	Query string `json:"query" description:"A valid Cypher query, e.g. MATCH (f:Finding)-[:HAS_VULNERABILITY]->(v:Vulnerability) RETURN f.id, v.title LIMIT 5" minLength:"1"`
}

// NewQueryTool returns the query_neo4j tool.
func NewQueryTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		QueryToolName,
		"Executes a Cypher query against the Neo4j database and returns the results. "+
			"Use this tool to retrieve information about findings, vulnerabilities, or relationships from the knowledge graph.",
		QueryArgs{},
		func(tc *tool.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			return runQuery(tc, query, nil), nil
		},
	)
}

// runQuery executes query in the invocation's read session and renders the
// rows for the model. Store failures are reported as text, never as errors,
// so the model can correct its query.
func runQuery(tc *tool.Context, query string, params map[string]any) string {
	queryID := ulid.Make().String()
	start := time.Now()
	logger := tc.Logger()

	sess, err := tc.Session()
	if err != nil {
		logger.Warn("tool.query.failed", "query_id", queryID, "error", err.Error())

		if errors.Is(err, store.ErrNoStore) {
			return noStoreText
		}
		return fmt.Sprintf(queryErrorTempl, err)
	}

	records, err := sess.Run(tc.Context(), query, params)
	if err != nil {
		logger.Warn("tool.query.failed",
			"query_id", queryID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return fmt.Sprintf(queryErrorTempl, err)
	}

	logger.Info("tool.query.completed",
		"query_id", queryID,
		"rows", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if len(records) == 0 {
		return noResultsText
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Sprintf(queryErrorTempl, err)
	}

	return string(out)
}
