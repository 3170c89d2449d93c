// Package agent defines the two agent configurations of secmesh.
//
// Analyst is the single-agent loop: one cybersecurity analyst prompt with
// the explain_vector and query_neo4j tools, driven Model ⇄ Tools until the
// model answers without tool calls.
//
// Pipeline is the multi-agent configuration. An orchestrator walks the
// stage transition table (analysis → correlation → risk → recommendation)
// and hands control to one specialist per stage. A specialist keeps the
// floor while it requests tools; its first turn without tool calls
// completes the stage and is stored as the stage summary.
//
// Both implement flow.Executor and are consumed by the runner package.
package agent
