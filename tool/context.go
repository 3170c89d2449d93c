package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/store"
)

// ErrContextReleased is returned by Session after Release.
var ErrContextReleased = errors.New("tool context released")

// Context is the scope of one tool invocation. It exposes the run's
// ExecutionContext and hands out at most one read session from the run's
// borrowed store, acquired on first use and closed by Release.
type Context struct {
	ctx    context.Context
	exec   *core.ExecutionContext
	callID string

	mu       sync.Mutex
	session  store.Session
	released bool
}

// NewContext creates the scope for tool call callID. exec may be nil for
// tools invoked outside a run.
func NewContext(ctx context.Context, exec *core.ExecutionContext, callID string) *Context {
	return &Context{ctx: ctx, exec: exec, callID: callID}
}

// Context returns the cancellation context of the invocation.
func (c *Context) Context() context.Context { return c.ctx }

// CallID returns the tool call identifier.
func (c *Context) CallID() string { return c.callID }

// Exec returns the run's ExecutionContext (may be nil).
func (c *Context) Exec() *core.ExecutionContext { return c.exec }

// TraceID returns the run trace id, or "" outside a run.
func (c *Context) TraceID() string {
	if c.exec == nil {
		return ""
	}
	return c.exec.TraceID()
}

// Logger returns the run logger.
func (c *Context) Logger() logging.Logger {
	if c.exec == nil {
		return logging.NoOpLogger{}
	}
	return c.exec.Logger()
}

// Session returns the read session of this invocation, opening it on first use.
func (c *Context) Session() (store.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, ErrContextReleased
	}

	if c.session != nil {
		return c.session, nil
	}

	if c.exec == nil || c.exec.Store() == nil {
		return nil, store.ErrNoStore
	}

	sess, err := c.exec.Store().Session(c.ctx, store.AccessRead)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	c.session = sess

	return sess, nil
}

// Release closes the session if one was opened. It is idempotent.
func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true

	if c.session == nil {
		return nil
	}

	// The invocation context may already be cancelled; closing must still happen.
	err := c.session.Close(context.WithoutCancel(c.ctx))
	c.session = nil

	return err
}
