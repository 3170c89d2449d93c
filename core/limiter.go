package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStepLimitExceeded matches every StepLimitError via errors.Is.
var ErrStepLimitExceeded = errors.New("step ceiling exceeded")

// StepLimitError reports a run aborted by the step ceiling.
type StepLimitError struct {
	Limit int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("step ceiling exceeded: more than %d transitions", e.Limit)
}

// Is makes errors.Is(err, ErrStepLimitExceeded) hold.
func (e *StepLimitError) Is(target error) bool { return target == ErrStepLimitExceeded }

// StepLimiter enforces a maximum number of Model/Tools transitions per run.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a limiter allowing max transitions.
// If max == 0, unlimited transitions are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Step records one transition and returns a *StepLimitError once the
// ceiling is exceeded. It must be called before the transition executes.
func (l *StepLimiter) Step() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return &StepLimitError{Limit: l.max}
	}

	return nil
}

// Count returns the number of recorded transitions.
func (l *StepLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}
