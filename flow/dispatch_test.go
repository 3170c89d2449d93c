package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/internal/testutil"
	"github.com/hupe1980/secmesh/store"
	"github.com/hupe1980/secmesh/tool"
	"github.com/hupe1980/secmesh/tool/security"
)

func TestDispatch_OneResultPerCallInOrder(t *testing.T) {
	s := store.NewMockStore(testutil.CountRows(3))
	d := NewDispatcher(analystRegistry(t), nil)
	state := testutil.NewState(t, "hi", s)

	msg := testutil.AI().
		Call(security.VectorToolName, map[string]any{"vector": "network"}).
		Call("ghost", nil).
		Call(security.QueryToolName, map[string]any{"query": countQuery}).
		Call(security.VectorToolName, map[string]any{"vector": "config"}).
		Build()

	results, err := d.Dispatch(context.Background(), state.Exec, msg)
	require.NoError(t, err)
	require.Len(t, results, len(msg.ToolCalls))

	seen := map[string]int{}
	for i, r := range results {
		assert.Equal(t, core.RoleTool, r.Role)
		assert.Equal(t, msg.ToolCalls[i].ID, r.ToolCallID)
		assert.Equal(t, msg.ToolCalls[i].Name, r.Name)
		seen[r.ToolCallID]++
	}
	for _, c := range msg.ToolCalls {
		assert.Equal(t, 1, seen[c.ID])
	}

	assert.Contains(t, results[0].Content, "Network issue")
	assert.Equal(t, "Unknown tool: ghost", results[1].Content)
	assert.Contains(t, results[2].Content, `"count": 3`)
	assert.Contains(t, results[3].Content, "Configuration issue")

	// Only the query call touched the store.
	assert.Equal(t, 1, s.Opened())
	assert.Equal(t, 1, s.Closed())

	require.NoError(t, state.Conversation.Append(msg))
	assert.NoError(t, state.Conversation.Append(results...))
}

func TestDispatch_RequiresToolCalls(t *testing.T) {
	d := NewDispatcher(analystRegistry(t), nil)
	_, err := d.Dispatch(context.Background(), testutil.NewState(t, "hi", nil).Exec, testutil.Final("done"))
	assert.ErrorIs(t, err, ErrNoToolCalls)
}

func TestDispatch_ToolFailuresBecomeText(t *testing.T) {
	failing := tool.NewFunctionTool("failing", "always fails", nil, func(*tool.Context, map[string]any) (string, error) {
		return "", errors.New("disk on fire")
	})
	panicking := tool.NewFunctionTool("panicking", "always panics", nil, func(*tool.Context, map[string]any) (string, error) {
		panic("nil map")
	})
	sessionUser := tool.NewFunctionTool("session_user", "opens a session then fails", nil, func(tc *tool.Context, _ map[string]any) (string, error) {
		if _, err := tc.Session(); err != nil {
			return "", err
		}
		return "", errors.New("late failure")
	})

	reg := tool.MustRegistry(failing, panicking, sessionUser, security.NewVectorTool())
	s := store.NewMockStore(nil)
	d := NewDispatcher(reg, nil)
	state := testutil.NewState(t, "hi", s)

	msg := testutil.AI().
		Call("failing", nil).
		Call("panicking", nil).
		Call("session_user", nil).
		RawCall(security.VectorToolName, `{not json`).
		Call(security.VectorToolName, map[string]any{}).
		Build()

	results, err := d.Dispatch(context.Background(), state.Exec, msg)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "Error executing tool failing: disk on fire", results[0].Content)
	assert.Equal(t, "Error executing tool panicking: panic: nil map", results[1].Content)
	assert.Equal(t, "Error executing tool session_user: late failure", results[2].Content)
	assert.Contains(t, results[3].Content, "Error executing tool explain_vector: invalid arguments")
	assert.Contains(t, results[4].Content, "Error executing tool explain_vector: parameter validation failed")

	assert.Equal(t, 1, s.Opened())
	assert.Equal(t, 1, s.Closed())
}

func TestDispatch_Policy(t *testing.T) {
	policy, err := tool.NewPolicy(tool.DefaultPolicy)
	require.NoError(t, err)

	s := store.NewMockStore(testutil.CountRows(1))
	d := NewDispatcher(analystRegistry(t), policy)
	state := testutil.NewState(t, "hi", s)

	msg := testutil.AI().
		Call(security.QueryToolName, map[string]any{"query": "MATCH (n) DETACH DELETE n"}).
		Call(security.QueryToolName, map[string]any{"query": countQuery}).
		Build()

	results, err := d.Dispatch(context.Background(), state.Exec, msg)
	require.NoError(t, err)

	assert.Equal(t, "Error executing tool query_neo4j: call rejected by tool policy", results[0].Content)
	assert.Contains(t, results[1].Content, `"count": 1`)

	queries := s.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, countQuery, queries[0].Text)
}
