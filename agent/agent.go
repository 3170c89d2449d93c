package agent

import (
	"github.com/hupe1980/secmesh/flow"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/tool"
)

const (
	// DefaultAnalystMaxSteps is the step ceiling of a single-agent run.
	DefaultAnalystMaxSteps = 50
	// DefaultPipelineMaxSteps is the step ceiling of a multi-agent run.
	DefaultPipelineMaxSteps = 100
)

// Mode distinguishes the two agent configurations.
type Mode uint8

const (
	// ModeSingle is the single-agent analyst loop.
	ModeSingle Mode = iota + 1
	// ModeMulti is the four-stage specialist pipeline.
	ModeMulti
)

// String returns the mode name used in logs and metrics.
func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Agent is an executor with a fixed configuration.
type Agent interface {
	flow.Executor
	// Name returns the agent name.
	Name() string
	// Mode returns the configuration kind.
	Mode() Mode
	// MaxSteps returns the step ceiling of one run.
	MaxSteps() int
}

// Options configures NewAnalyst and NewPipeline.
type Options struct {
	// MaxSteps overrides the default step ceiling. Zero keeps the default.
	MaxSteps int
	// Policy guards every tool call. Nil allows all calls.
	Policy *tool.Policy
	// Logger receives construction logs.
	Logger logging.Logger
}

func applyOptions(defaultSteps int, optFns []func(o *Options)) Options {
	opts := Options{MaxSteps: defaultSteps, Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultSteps
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return opts
}
