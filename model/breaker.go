package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/logging"
)

// ErrUnavailable is wrapped into errors returned while the breaker is open.
var ErrUnavailable = errors.New("completion service unavailable")

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures CircuitBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `mapstructure:"max_failures" yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Interval clears failure counts periodically while closed.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// CircuitBreaker wraps a Model so repeated provider failures fail fast
// instead of reaching the provider. It never retries.
type CircuitBreaker struct {
	inner   Model
	breaker *gobreaker.CircuitBreaker[core.Message]
}

// NewCircuitBreaker wraps inner. Zero config fields take defaults.
func NewCircuitBreaker(inner Model, cfg BreakerConfig, logger logging.Logger) *CircuitBreaker {
	logger = logging.OrNoOp(logger)

	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}

	cb := gobreaker.NewCircuitBreaker[core.Message](gobreaker.Settings{
		Name:        "model:" + inner.Info().Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("model.breaker.state_changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a provider failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreaker{inner: inner, breaker: cb}
}

// Generate implements Model.
func (c *CircuitBreaker) Generate(ctx context.Context, req Request) (core.Message, error) {
	msg, err := c.breaker.Execute(func() (core.Message, error) {
		return c.inner.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return core.Message{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.inner.Info().Name, err)
		}
		return core.Message{}, err
	}
	return msg, nil
}

// Info implements Model.
func (c *CircuitBreaker) Info() Info { return c.inner.Info() }

// State returns the current breaker state.
func (c *CircuitBreaker) State() gobreaker.State { return c.breaker.State() }
