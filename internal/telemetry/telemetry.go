// Package telemetry wires OpenTelemetry tracing and metrics for secmesh.
// Spans are opened per run, per model call and per tool call; counters
// track the same events. Setup installs both a tracer and a meter provider;
// without it everything goes to the global noop providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/hupe1980/secmesh"

// Config selects the span and metric exporter.
type Config struct {
	// Exporter is "none" (or empty) or "stdout".
	Exporter string
	// Writer receives stdout exporter output (defaults to os.Stdout).
	Writer io.Writer
}

// Setup installs the global tracer and meter providers and returns a
// shutdown function that flushes both.
func Setup(_ context.Context, cfg Config) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch cfg.Exporter {
	case "", "none", "noop":
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return noopShutdown, nil
	case "stdout":
		traceOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		metricOpts := []stdoutmetric.Option{stdoutmetric.WithPrettyPrint()}
		if cfg.Writer != nil {
			traceOpts = append(traceOpts, stdouttrace.WithWriter(cfg.Writer))
			metricOpts = append(metricOpts, stdoutmetric.WithWriter(cfg.Writer))
		}

		spanExporter, err := stdouttrace.New(traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout span exporter: %w", err)
		}

		metricExporter, err := stdoutmetric.New(metricOpts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		)

		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)

		return func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// StartSpan starts a named span from the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span successful.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// End closes span with a status derived from err.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		SetOK(span)
	}
	span.End()
}

// String is a convenience for attribute.String.
func String(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// Int is a convenience for attribute.Int.
func Int(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }

type counters struct {
	runs       metric.Int64Counter
	modelCalls metric.Int64Counter
	toolCalls  metric.Int64Counter
}

var (
	countersMu  sync.Mutex
	countersFor metric.MeterProvider
	instruments counters
)

// meterCounters returns the counters of the current global meter provider,
// recreating them after Setup swaps it.
func meterCounters() counters {
	mp := otel.GetMeterProvider()

	countersMu.Lock()
	defer countersMu.Unlock()

	if countersFor == mp {
		return instruments
	}

	meter := mp.Meter(instrumentationName)
	// Instrument creation only fails on invalid names; the noop
	// instruments returned alongside the error are still usable.
	instruments.runs, _ = meter.Int64Counter("secmesh.runs",
		metric.WithDescription("Completed runs by mode and outcome"))
	instruments.modelCalls, _ = meter.Int64Counter("secmesh.model.calls",
		metric.WithDescription("Completion service calls by provider and outcome"))
	instruments.toolCalls, _ = meter.Int64Counter("secmesh.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome"))
	countersFor = mp

	return instruments
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// CountRun increments the run counter.
func CountRun(ctx context.Context, mode string, err error) {
	meterCounters().runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode), attribute.String("outcome", outcome(err))))
}

// CountModelCall increments the model call counter.
func CountModelCall(ctx context.Context, provider string, err error) {
	meterCounters().modelCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider), attribute.String("outcome", outcome(err))))
}

// CountToolCall increments the tool call counter.
func CountToolCall(ctx context.Context, tool, result string) {
	meterCounters().toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool), attribute.String("outcome", result)))
}
