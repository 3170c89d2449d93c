package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetup(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		shutdown, err := Setup(context.Background(), Config{Exporter: "none"})
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))

		_, ok := otel.GetTracerProvider().(noop.TracerProvider)
		assert.True(t, ok)

		_, ok = otel.GetMeterProvider().(metricnoop.MeterProvider)
		assert.True(t, ok)
	})

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Setup(context.Background(), Config{Exporter: "stdout", Writer: &buf})
		require.NoError(t, err)

		_, span := StartSpan(context.Background(), "run", String("trace_id", "t-1"))
		End(span, nil)
		CountRun(context.Background(), "single", nil)
		CountToolCall(context.Background(), "query_neo4j", "ok")

		require.NoError(t, shutdown(context.Background()))
		out := buf.String()
		assert.Contains(t, out, `"Name": "run"`)
		assert.Contains(t, out, `"Name": "secmesh.runs"`)
		assert.Contains(t, out, `"Name": "secmesh.tool.calls"`)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := Setup(context.Background(), Config{Exporter: "jaeger"})
		assert.Error(t, err)
	})
}

func TestEndSetsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartSpan(context.Background(), "ok", Int("step", 1))
	End(ok, nil)

	_, failed := StartSpan(context.Background(), "failed")
	End(failed, errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestCountersDoNotPanic(t *testing.T) {
	ctx := context.Background()
	CountRun(ctx, "single", nil)
	CountModelCall(ctx, "openai", errors.New("x"))
	CountToolCall(ctx, "query_neo4j", "ok")
}
