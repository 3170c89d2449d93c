// Package security provides the security analysis tool catalog: the
// free-form graph query tool, the attack vector explainer and the
// specialist tools of the multi-agent pipeline. Every tool is read-only
// against the graph store.
//
// Tools that touch the store obtain their read session from the tool
// Context of the invocation, so the dispatcher owns session lifetime.
package security
