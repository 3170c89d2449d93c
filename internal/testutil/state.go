package testutil

import (
	"testing"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/store"
)

// NewState builds a run state starting with the human message text. s may be nil.
func NewState(t testing.TB, text string, s store.Store) *core.State {
	t.Helper()

	exec, err := core.NewExecutionContext("trace-test", func(o *core.ExecutionContextOptions) {
		if s != nil {
			o.Store = s
		}
	})
	if err != nil {
		t.Fatalf("testutil: execution context: %v", err)
	}

	state, err := core.NewState(core.NewHumanMessage(text), exec)
	if err != nil {
		t.Fatalf("testutil: state: %v", err)
	}

	return state
}

// CountRows returns a store handler answering every query with one row {count: n}.
func CountRows(n int64) func(string, map[string]any) ([]store.Record, error) {
	return func(string, map[string]any) ([]store.Record, error) {
		return []store.Record{store.RecordFromPairs("count", n)}, nil
	}
}
