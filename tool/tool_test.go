package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vectorArgs struct {
	Vector string `json:"vector" description:"Vector" enum:"code,network,config"`
}

func echoTool(name string) *FunctionTool {
	return NewFunctionTool(name, "Echo the text back",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
		func(_ *Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	)
}

func newExec(t *testing.T, s store.Store) *core.ExecutionContext {
	t.Helper()

	exec, err := core.NewExecutionContext("trace-1", func(o *core.ExecutionContextOptions) { o.Store = s })
	require.NoError(t, err)

	return exec
}

// -------------------- Registry --------------------

func TestRegistry_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	_, err := NewRegistry(echoTool("echo"), echoTool("echo"))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewRegistry(echoTool(""))
	assert.Error(t, err)

	assert.Panics(t, func() { MustRegistry(echoTool("a"), echoTool("a")) })
}

func TestRegistry_RejectsInvalidSchema(t *testing.T) {
	bad := NewFunctionTool("bad", "x", map[string]any{"type": 12}, nil)

	_, err := NewRegistry(bad)
	assert.Error(t, err)
}

func TestRegistry_LookupAndOrder(t *testing.T) {
	r, err := NewRegistry(echoTool("b"), echoTool("a"))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, 2, r.Len())

	tl, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", tl.Name())

	_, ok = r.Lookup("delete_everything")
	assert.False(t, ok)
}

func TestRegistry_Subset(t *testing.T) {
	r := MustRegistry(echoTool("a"), echoTool("b"), echoTool("c"))

	sub, err := r.Subset("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sub.Names())

	_, err = r.Subset("a", "nope")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Subset("a", "a")
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegistry_Validate(t *testing.T) {
	r := MustRegistry(
		echoTool("echo"),
		NewFunctionToolFromStruct("explain", "x", vectorArgs{}, func(*Context, map[string]any) (string, error) { return "", nil }),
	)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", "echo", map[string]any{"text": "hi"}, false},
		{"missing required", "echo", map[string]any{}, true},
		{"nil args", "echo", nil, true},
		{"wrong type", "echo", map[string]any{"text": 5}, true},
		{"enum ok", "explain", map[string]any{"vector": "network"}, false},
		{"enum violation", "explain", map[string]any{"vector": "physical"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.tool, tt.args)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, CodeValidation, toolErr.Code)
			assert.Equal(t, tt.tool, toolErr.Tool)
		})
	}

	assert.ErrorIs(t, r.Validate("ghost", nil), ErrUnknownTool)
}

func TestRegistry_Call(t *testing.T) {
	r := MustRegistry(echoTool("echo"))
	tc := NewContext(context.Background(), nil, "call-1")

	out, err := r.Call(tc, "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = r.Call(tc, "ghost", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

// -------------------- FunctionTool --------------------

func TestFunctionTool_WrapsErrors(t *testing.T) {
	plain := NewFunctionTool("plain", "x", nil, func(*Context, map[string]any) (string, error) {
		return "", errors.New("connection reset")
	})
	custom := NewFunctionTool("custom", "x", nil, func(*Context, map[string]any) (string, error) {
		return "", NewToolError("custom", "nope", "CUSTOM")
	})

	tc := NewContext(context.Background(), nil, "c")

	_, err := plain.Call(tc, nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "connection reset", toolErr.Message)

	_, err = custom.Call(tc, nil)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "CUSTOM", toolErr.Code)
	assert.Equal(t, "tool error [CUSTOM] in custom: nope", err.Error())
}

func TestFunctionTool_DefaultParameters(t *testing.T) {
	ft := NewFunctionTool("noargs", "x", nil, nil)
	assert.Equal(t, "object", ft.Parameters()["type"])
}

// -------------------- Context --------------------

func TestContext_SessionIsLazyAndReleased(t *testing.T) {
	s := store.NewMockStore(nil)
	tc := NewContext(context.Background(), newExec(t, s), "call-1")

	assert.Equal(t, "trace-1", tc.TraceID())
	assert.Equal(t, "call-1", tc.CallID())
	assert.Equal(t, 0, s.Opened(), "no session before first use")

	first, err := tc.Session()
	require.NoError(t, err)
	second, err := tc.Session()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Opened())

	require.NoError(t, tc.Release())
	require.NoError(t, tc.Release())
	assert.Equal(t, 1, s.Closed())

	_, err = tc.Session()
	assert.ErrorIs(t, err, ErrContextReleased)
}

func TestContext_SessionWithoutStore(t *testing.T) {
	tc := NewContext(context.Background(), newExec(t, nil), "c")

	_, err := tc.Session()
	assert.ErrorIs(t, err, store.ErrNoStore)
	assert.NoError(t, tc.Release())
}

func TestContext_ReleaseAfterCancel(t *testing.T) {
	s := store.NewMockStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	tc := NewContext(ctx, newExec(t, s), "c")

	_, err := tc.Session()
	require.NoError(t, err)

	cancel()
	require.NoError(t, tc.Release())
	assert.Equal(t, 1, s.Closed())
}

// -------------------- Policy --------------------

func TestPolicy_Default(t *testing.T) {
	p, err := NewPolicy(DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name  string
		tool  string
		args  map[string]any
		allow bool
	}{
		{"read query", "query_neo4j", map[string]any{"query": "MATCH (f:Finding) RETURN count(f) AS count"}, true},
		{"offset is not set", "query_neo4j", map[string]any{"query": "MATCH (a:Asset) RETURN a.offset"}, true},
		{"merge", "query_neo4j", map[string]any{"query": "MERGE (a:Asset {url: 'x'})"}, false},
		{"detach delete", "query_neo4j", map[string]any{"query": "MATCH (n) DETACH DELETE n"}, false},
		{"keyword in string literal", "query_neo4j", map[string]any{"query": "MATCH (v:Vulnerability) WHERE v.title CONTAINS 'Remove' RETURN v"}, true},
		{"keyword in double quoted literal", "query_neo4j", map[string]any{"query": `MATCH (f:Finding {type: "SET cookie"}) RETURN f`}, true},
		{"keyword in comment", "query_neo4j", map[string]any{"query": "MATCH (f:Finding) // delete later\nRETURN f"}, true},
		{"write after literal", "query_neo4j", map[string]any{"query": "MATCH (a:Asset {url: 'x'}) SET a.seen = true"}, false},
		{"escaped quote does not end literal", "query_neo4j", map[string]any{"query": `MATCH (a) WHERE a.n = 'it\'s' DELETE a`}, false},
		{"no query arg", "query_neo4j", map[string]any{}, true},
		{"other tool", "explain_vector", map[string]any{"vector": "code"}, true},
		{"nil args", "find_priority_remediation_order", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.Allow(tt.tool, tt.args, "")
			require.NoError(t, err)
			assert.Equal(t, tt.allow, ok)
		})
	}
}

func TestStripLiterals(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MATCH (n) RETURN n", "MATCH (n) RETURN n"},
		{"WHERE v.title CONTAINS 'Remove'", "WHERE v.title CONTAINS ''"},
		{`RETURN "a \" delete" AS x`, `RETURN "" AS x`},
		{"MATCH (n:`Drop Table`) RETURN n", "MATCH (n:``) RETURN n"},
		{"MATCH (n) /* create */ RETURN n", "MATCH (n)   RETURN n"},
		{"RETURN 1 // set", "RETURN 1 "},
		{"RETURN 'unterminated delete", "RETURN 'unterminated delete"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripLiterals(tt.in))
		})
	}
}

func TestPolicy_StageVariable(t *testing.T) {
	p, err := NewPolicy(`stage != "recommendation" || tool != "query_neo4j"`)
	require.NoError(t, err)

	ok, err := p.Allow("query_neo4j", nil, "analysis")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Allow("query_neo4j", nil, "recommendation")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, `stage != "recommendation" || tool != "query_neo4j"`, p.String())
}

func TestPolicy_Errors(t *testing.T) {
	_, err := NewPolicy(`tool ==`)
	assert.Error(t, err)

	p, err := NewPolicy(`"not a bool"`)
	require.NoError(t, err)

	_, err = p.Allow("x", nil, "")
	assert.Error(t, err)
}
