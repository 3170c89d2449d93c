package core

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/store"
)

// ErrEmptyTraceID is returned when an ExecutionContext is built without a trace id.
var ErrEmptyTraceID = errors.New("trace id must not be empty")

// ExecutionContextOptions configures NewExecutionContext.
type ExecutionContextOptions struct {
	// Store is the borrowed graph store handle. Runs never close it.
	Store store.Store
	// UserID identifies the caller (defaults to "anonymous").
	UserID string
	// Logger receives run scoped log lines.
	Logger logging.Logger
	// Now overrides the clock used for the start timestamp.
	Now func() time.Time
}

// ExecutionContext carries the ambient fields of one run: the borrowed store
// handle, the immutable trace id, the user id, the start timestamp and, in
// multi-agent mode, the current stage tag plus per-stage result buckets.
//
// The stage tag only changes through Advance, which follows the stage
// transition table; it never skips or regresses.
type ExecutionContext struct {
	store     store.Store
	traceID   string
	userID    string
	startedAt time.Time

	mu      sync.RWMutex
	stage   Stage
	results map[Stage]map[string]any

	*loggerAdapter
}

// NewExecutionContext creates a context for a run identified by traceID.
func NewExecutionContext(traceID string, optFns ...func(o *ExecutionContextOptions)) (*ExecutionContext, error) {
	if traceID == "" {
		return nil, ErrEmptyTraceID
	}

	opts := ExecutionContextOptions{
		UserID: "anonymous",
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ExecutionContext{
		store:         opts.Store,
		traceID:       traceID,
		userID:        opts.UserID,
		startedAt:     opts.Now().UTC(),
		stage:         StageUnset,
		results:       map[Stage]map[string]any{},
		loggerAdapter: newLoggerAdapter(opts.Logger),
	}, nil
}

// TraceID returns the run trace id. It never changes.
func (e *ExecutionContext) TraceID() string { return e.traceID }

// UserID returns the caller id.
func (e *ExecutionContext) UserID() string { return e.userID }

// StartedAt returns the UTC start timestamp.
func (e *ExecutionContext) StartedAt() time.Time { return e.startedAt }

// Store returns the borrowed graph store, or nil if none was injected.
func (e *ExecutionContext) Store() store.Store { return e.store }

// Stage returns the current stage tag.
func (e *ExecutionContext) Stage() Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.stage
}

// Advance moves the stage tag to its successor and returns it.
func (e *ExecutionContext) Advance() (Stage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.stage.Next()
	if err != nil {
		return e.stage, err
	}
	e.stage = next

	return next, nil
}

// RecordResult stores a value in the bucket of a specialist stage.
func (e *ExecutionContext) RecordResult(stage Stage, key string, value any) error {
	if !stage.IsSpecialist() {
		return fmt.Errorf("%w: %s has no result bucket", ErrInvalidStage, stage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bucket, ok := e.results[stage]
	if !ok {
		bucket = map[string]any{}
		e.results[stage] = bucket
	}
	bucket[key] = value

	return nil
}

// Results returns a copy of the bucket of stage.
func (e *ExecutionContext) Results(stage Stage) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return maps.Clone(e.results[stage])
}
