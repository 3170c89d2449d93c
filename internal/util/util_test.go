package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	Vector   string  `json:"vector" description:"Vulnerability vector" enum:"code, network, config"`
	Limit    *int    `json:"limit" description:"Optional pointer field"`
	Verbose  bool    `json:"verbose,omitempty"`
	Ignored  string  `json:"-"`
	internal string  //nolint:unused
	Score    float64 `json:"score"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "vector")
	assert.Contains(t, props, "limit")
	assert.Contains(t, props, "verbose")
	assert.NotContains(t, props, "Ignored")
	assert.NotContains(t, props, "internal")

	vector := props["vector"].(map[string]any)
	assert.Equal(t, "string", vector["type"])
	assert.Equal(t, []any{"code", "network", "config"}, vector["enum"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, "number", props["score"].(map[string]any)["type"])

	assert.ElementsMatch(t, []any{"vector", "score"}, schema["required"])
}

func TestCreateSchema_NestedTypes(t *testing.T) {
	type args struct {
		Name  string         `json:"name" minLength:"1"`
		IDs   []string       `json:"ids"`
		Extra map[string]any `json:"extra,omitempty"`
		Any   any            `json:"any,omitempty"`
	}

	props := CreateSchema(&args{})["properties"].(map[string]any)

	assert.Equal(t, map[string]any{"type": "string", "minLength": 1}, props["name"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["ids"])
	assert.Equal(t, map[string]any{"type": "object"}, props["extra"])
	assert.Equal(t, map[string]any{}, props["any"])
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "required")
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", out)

	out, err = RenderTemplate("- {{.id1}}\n- {{.id2}} <{{.missing}}>", map[string]any{"id1": "F-1", "id2": "F-2"})
	require.NoError(t, err)
	assert.Equal(t, "- F-1\n- F-2 <>", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
