package main

import (
	"bytes"
	"encoding/json"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secmesh/runner"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("NEO4J_URI", "")
	t.Setenv("REDIS_ADDR", "")

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), ".env"), "--log-level", "error"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestAsk(t *testing.T) {
	out, err := run(t, "ask", "How", "many", "findings?")
	require.NoError(t, err)

	assert.Equal(t, "Mock response to: How many findings?\n", out)
}

func TestAsk_JSON(t *testing.T) {
	out, err := run(t, "ask", "--json", "--trace-id", "t-9", "hello")
	require.NoError(t, err)

	var answer runner.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "t-9", answer.TraceID)
	assert.Equal(t, "Mock response to: hello", answer.Text)
	assert.Equal(t, 1, answer.Steps)
}

func TestAsk_Multi(t *testing.T) {
	out, err := run(t, "ask", "--multi", "assess")
	require.NoError(t, err)

	for _, title := range []string{"## Analysis", "## Correlation", "## Risk Assessment", "## Recommendation"} {
		assert.Contains(t, out, title)
	}
}

func TestStream(t *testing.T) {
	out, err := run(t, "stream", "--multi", "--trace-id", "ext", "assess")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)

	for _, line := range lines {
		var rec runner.StepRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, "ext", rec.TraceID)
		assert.True(t, strings.HasSuffix(rec.Step, " Complete"))
	}
}

func TestStream_ErrorRecordFailsCommand(t *testing.T) {
	out, err := run(t, "stream", "--trace-id", "ext", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run ext failed")

	var rec runner.StepRecord
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &rec))
	assert.Equal(t, runner.StepError, rec.Step)
}

func TestWriteRecords(t *testing.T) {
	records := func(recs ...runner.StepRecord) iter.Seq[runner.StepRecord] {
		return slices.Values(recs)
	}

	tests := []struct {
		name    string
		recs    []runner.StepRecord
		wantErr string
	}{
		{"final answer", []runner.StepRecord{{Step: runner.StepThought, TraceID: "t"}, {Step: runner.StepFinalAnswer, TraceID: "t"}}, ""},
		{"error record", []runner.StepRecord{{Step: runner.StepError, TraceID: "t", Content: "boom"}}, "run t failed: boom"},
		{"stopped early", []runner.StepRecord{{Step: runner.StepThought, TraceID: "t"}}, "run t ended without a final record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := writeRecords(&buf, records(tt.recs...))
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tt.wantErr)
			}
			assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), len(tt.recs))
		})
	}
}

func TestConfig_Redacts(t *testing.T) {
	t.Setenv("LITELLM_API_KEY", "sk-secret")

	out, err := run(t, "config")
	require.NoError(t, err)

	assert.Contains(t, out, "provider: mock")
	assert.NotContains(t, out, "sk-secret")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	require.Error(t, err)
}

func TestEnrich_WithoutStore(t *testing.T) {
	_, err := run(t, "enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph store not available")
}
