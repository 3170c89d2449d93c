// Package logging provides the minimal logging interface used across secmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// with slog-style key/value arguments. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - SecMeshLogger with component/trace context
//   - LogModelCall, LogToolCall and LogRun for the per-call and per-run entries
//   - NoOpLogger for silent operation (tests, library use)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json"})
//	logger.WithComponent("runner").Info("run.start", "mode", "single")
//	logging.LogRun(logger.With("trace_id", traceID), "single", 3, time.Since(start), nil)
package logging
