// Package runner is the streaming adapter between an agent and its caller.
//
// A Runner executes one agent per request. Stream returns a lazy,
// non-restartable sequence of StepRecords: every checkpoint of the agent
// is mapped to exactly one record as soon as it happens, and a fatal run
// error becomes a single trailing Error record. Nothing runs in the
// background; when the caller stops pulling, the run stops.
//
// Every record of a run carries the same trace id. A caller supplied trace
// id is used verbatim; otherwise one is minted when the stream is created.
//
// Ask drives the same sequence to completion and returns the final answer
// (and, for the multi-agent pipeline, the per-stage report).
package runner
