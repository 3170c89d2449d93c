package flow

import "github.com/hupe1980/secmesh/core"

// Route is the router decision after a model step.
type Route uint8

const (
	// RouteTools dispatches the requested tool calls.
	RouteTools Route = iota + 1
	// RouteEnd terminates the loop (or completes the stage).
	RouteEnd
)

// String returns the route name.
func (r Route) String() string {
	if r == RouteTools {
		return "tools"
	}
	return "end"
}

// Next is the router: it depends only on whether msg requests tool calls.
func Next(msg core.Message) Route {
	if len(msg.ToolCalls) > 0 {
		return RouteTools
	}
	return RouteEnd
}
