// Package flow implements the single-agent execution core: the model node,
// the tool-dispatch node, the router between them and the step-wise
// executor that yields one Checkpoint per completed node.
//
// Executors are range-over-func producers. Nothing runs ahead of the
// consumer: every node executes only when the caller pulls the next
// checkpoint, and stopping the iteration ends the run.
package flow
