// Package core provides the foundational domain types of secmesh. It defines:
//
//   - Messages (System, Human, AI with tool calls, ToolResult) and the
//     append-only Conversation that holds them
//   - ExecutionContext (trace id, user id, start time, borrowed graph store,
//     multi-agent stage tag and per-stage result buckets)
//   - Stage, the closed set of pipeline stages with its transition table
//   - State, the unit of execution for one run
//   - StepLimiter, the step ceiling guarding every run
//
// Execution (nodes, routing, streaming) lives in the flow, agent and runner
// packages; core keeps only the data model and its invariants.
package core
