package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/secmesh/core"
)

type mockStep struct {
	msg core.Message
	err error
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted steps are consumed in order; once the script is exhausted the
// responder (if any) answers, otherwise a final answer echoing the last
// human message is returned.
type MockModel struct {
	info Info

	mu        sync.Mutex
	script    []mockStep
	responder func(req Request) (core.Message, error)
	requests  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// AddResponse appends a scripted assistant message.
func (m *MockModel) AddResponse(msg core.Message) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockStep{msg: msg})

	return m
}

// AddError appends a scripted failure.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockStep{err: err})

	return m
}

// SetResponder installs fn to answer once the script is exhausted.
func (m *MockModel) SetResponder(fn func(req Request) (core.Message, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responder = fn

	return m
}

// Requests returns every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)

	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()

		return step.msg, step.err
	}

	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		return responder(req)
	}

	var input string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleHuman {
			input = req.Messages[i].Content
			break
		}
	}

	return core.NewAIMessage(fmt.Sprintf("Mock response to: %s", input)), nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
