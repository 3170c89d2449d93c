package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/secmesh/agent"
	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/internal/telemetry"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/store"
)

// ErrEmptyMessage is returned for requests without a user message.
var ErrEmptyMessage = errors.New("message is required")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits concurrent runs. Zero means unlimited.
	MaxConcurrentRuns int
	// UserID is attached to every run (defaults to "anonymous").
	UserID string
	// Logger receives run lifecycle logs.
	Logger logging.Logger
}

// Request is the caller input of one run.
type Request struct {
	// Message is the user question.
	Message string
	// TraceID is the optional caller supplied trace id.
	TraceID string
}

// Runner executes one agent per request. The store handle is shared by all
// runs and never closed by the runner. Public methods are safe for
// concurrent use.
type Runner struct {
	agent  agent.Agent
	store  store.Store
	userID string
	logger logging.Logger
	slots  chan struct{}

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner with optional overrides. s may be nil, in which
// case store-backed tools answer with an error text.
func New(a agent.Agent, s store.Store, optFns ...func(o *Options)) *Runner {
	opts := Options{
		UserID: "anonymous",
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Runner{
		agent:      a,
		store:      s,
		userID:     opts.UserID,
		logger:     logging.OrNoOp(opts.Logger),
		activeRuns: make(map[string]context.CancelFunc),
	}

	if opts.MaxConcurrentRuns > 0 {
		r.slots = make(chan struct{}, opts.MaxConcurrentRuns)
	}

	return r
}

// Agent returns the executed agent.
func (r *Runner) Agent() agent.Agent { return r.agent }

// ActiveRuns returns the number of runs currently executing.
func (r *Runner) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.activeRuns)
}

// CancelAll cancels every active run. Each cancelled stream ends with an
// Error record.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cancel := range r.activeRuns {
		cancel()
	}
}

// Stream is the lazy record sequence of one run.
type Stream struct {
	traceID  string
	external *string
	run      func(yield func(StepRecord) bool)
	pulled   atomic.Bool
}

// TraceID returns the trace id carried by every record of the stream.
func (s *Stream) TraceID() string { return s.traceID }

// ExternalTraceID returns the caller supplied trace id, or nil.
func (s *Stream) ExternalTraceID() *string { return s.external }

// Records returns the record sequence. The run starts when the first record
// is pulled and stops when the caller stops pulling. A stream can be
// consumed once; later sequences are empty.
func (s *Stream) Records() iter.Seq[StepRecord] {
	return func(yield func(StepRecord) bool) {
		if !s.pulled.CompareAndSwap(false, true) {
			return
		}
		s.run(yield)
	}
}

// Stream prepares a run for req. Nothing executes until Records is pulled.
func (r *Runner) Stream(ctx context.Context, req Request) *Stream {
	traceID, external := resolveTraceID(req.TraceID)

	s := &Stream{traceID: traceID, external: external}
	s.run = func(yield func(StepRecord) bool) {
		_, _ = r.execute(ctx, req.Message, traceID, func(step, content, agentTag string) bool {
			return yield(StepRecord{
				Step:            step,
				Content:         content,
				TraceID:         traceID,
				ExternalTraceID: external,
				Agent:           agentTag,
			})
		})
	}

	return s
}

// Answer is the result of a non-streaming run.
type Answer struct {
	TraceID string `json:"trace_id"`
	// Text is the final answer, or the recommendation summary of a pipeline run.
	Text string `json:"response"`
	// Steps is the number of records the run produced.
	Steps int `json:"steps"`
	// Report is set for pipeline runs.
	Report *Report `json:"report,omitempty"`
}

// Report collects the stage summaries of a pipeline run.
type Report struct {
	Stages []StageReport `json:"stages"`
}

// StageReport is the outcome of one specialist stage.
type StageReport struct {
	Stage     string `json:"stage"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	ToolCalls int    `json:"tool_calls"`
}

// Ask runs req to completion. A fatal run error is returned as error.
func (r *Runner) Ask(ctx context.Context, req Request) (*Answer, error) {
	traceID, _ := resolveTraceID(req.TraceID)

	answer := &Answer{TraceID: traceID}

	state, err := r.execute(ctx, req.Message, traceID, func(step, content, _ string) bool {
		answer.Steps++
		if step == StepFinalAnswer {
			answer.Text = content
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if r.agent.Mode() == agent.ModeMulti {
		answer.Report = buildReport(state.Exec)
		if n := len(answer.Report.Stages); n > 0 {
			answer.Text = answer.Report.Stages[n-1].Summary
		}
	}

	return answer, nil
}

func buildReport(exec *core.ExecutionContext) *Report {
	report := &Report{}

	for _, s := range core.SpecialistStages() {
		res := exec.Results(s)
		if res == nil {
			continue
		}

		sr := StageReport{Stage: s.String(), Title: s.Title()}
		sr.Summary, _ = res[agent.ResultSummary].(string)
		sr.ToolCalls, _ = res[agent.ResultToolCalls].(int)

		report.Stages = append(report.Stages, sr)
	}

	return report
}

type emitFunc func(step, content, agentTag string) bool

// execute drives one run, emitting one record per checkpoint and a
// trailing Error record on failure. It returns the run state (nil if the
// run could not start) and the fatal error, if any.
func (r *Runner) execute(ctx context.Context, message, traceID string, emit emitFunc) (*core.State, error) {
	mode := r.agent.Mode()

	fail := func(err error) error {
		tag := ""
		if mode == agent.ModeMulti {
			tag = AgentError
		}
		emit(StepError, errorContent(err), tag)
		return err
	}

	if message == "" {
		return nil, fail(ErrEmptyMessage)
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return nil, fail(err)
	}
	defer release()

	log := r.logger.With("trace_id", traceID)

	exec, err := core.NewExecutionContext(traceID, func(o *core.ExecutionContextOptions) {
		o.Store = r.store
		o.UserID = r.userID
		o.Logger = log
	})
	if err != nil {
		return nil, fail(err)
	}

	state, err := core.NewState(core.NewHumanMessage(message), exec)
	if err != nil {
		return nil, fail(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	runID := core.NewID()
	r.track(runID, cancel)
	defer r.untrack(runID)

	ctx, span := telemetry.StartSpan(ctx, "runner.run",
		telemetry.String("mode", mode.String()),
		telemetry.String("agent", r.agent.Name()),
		telemetry.String("trace_id", traceID),
	)

	limiter := core.NewStepLimiter(r.agent.MaxSteps())
	start := time.Now()

	log.Info("run.start", "mode", mode.String(), "max_steps", r.agent.MaxSteps())

	var (
		runErr    error
		abandoned bool
	)

	for cp, err := range r.agent.Steps(ctx, state, limiter) {
		if err != nil {
			runErr = err
			break
		}

		step, content, tag := describe(mode, cp)
		if !emit(step, content, tag) {
			abandoned = true
			break
		}
	}

	switch {
	case abandoned:
		runErr = context.Canceled
		log.Warn("run.abandoned", "mode", mode.String(), "transitions", limiter.Count())
	default:
		if runErr != nil {
			fail(runErr)
		}
		logging.LogRun(log, mode.String(), limiter.Count(), time.Since(start), runErr)
	}

	telemetry.End(span, runErr)
	telemetry.CountRun(ctx, mode.String(), runErr)

	return state, runErr
}

func (r *Runner) acquire(ctx context.Context) (func(), error) {
	if r.slots == nil {
		return func() {}, nil
	}

	select {
	case r.slots <- struct{}{}:
		return func() { <-r.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for a run slot: %w", ctx.Err())
	}
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activeRuns[id] = cancel
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.activeRuns[id]; ok {
		cancel()
		delete(r.activeRuns, id)
	}
}

// resolveTraceID applies the trace id rule: a caller supplied id is used
// verbatim, otherwise a fresh one is minted.
func resolveTraceID(external string) (string, *string) {
	if external != "" {
		return external, &external
	}
	return core.NewID(), nil
}
