package store

import (
	"context"
	"sync"
)

// Query captures one statement executed against a MockStore.
type Query struct {
	Text   string
	Params map[string]any
	Mode   AccessMode
}

// MockStore is an in-memory Store useful for tests & examples. Every query is
// answered by Handler; SessionErr, when set, makes Session fail.
type MockStore struct {
	Handler    func(query string, params map[string]any) ([]Record, error)
	SessionErr error
	PingErr    error

	mu      sync.Mutex
	opened  int
	closed  int
	queries []Query
}

// NewMockStore constructs a MockStore answering queries with handler. A nil
// handler returns no rows.
func NewMockStore(handler func(query string, params map[string]any) ([]Record, error)) *MockStore {
	return &MockStore{Handler: handler}
}

// Session implements Store.
func (m *MockStore) Session(_ context.Context, mode AccessMode) (Session, error) {
	if m.SessionErr != nil {
		return nil, m.SessionErr
	}

	m.mu.Lock()
	m.opened++
	m.mu.Unlock()

	return &mockSession{store: m, mode: mode}, nil
}

// Ping implements Pinger.
func (m *MockStore) Ping(context.Context) error { return m.PingErr }

// Opened returns the number of sessions handed out.
func (m *MockStore) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Closed returns the number of sessions closed.
func (m *MockStore) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Queries returns a copy of every executed query in order.
func (m *MockStore) Queries() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.queries...)
}

type mockSession struct {
	store  *MockStore
	mode   AccessMode
	closed bool
}

func (s *mockSession) Run(_ context.Context, query string, params map[string]any) ([]Record, error) {
	s.store.mu.Lock()
	s.store.queries = append(s.store.queries, Query{Text: query, Params: params, Mode: s.mode})
	handler := s.store.Handler
	s.store.mu.Unlock()

	if handler == nil {
		return nil, nil
	}
	return handler(query, params)
}

func (s *mockSession) Close(context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.store.mu.Lock()
	s.store.closed++
	s.store.mu.Unlock()

	return nil
}
