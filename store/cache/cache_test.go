package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secmesh/store"
)

type fakeClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	getErr  error
	pingErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (f *fakeClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeClient) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeClient) Ping(context.Context) error { return f.pingErr }

func (f *fakeClient) Close() error { return nil }

func run(t *testing.T, s store.Store, mode store.AccessMode, query string, params map[string]any) []store.Record {
	t.Helper()

	sess, err := s.Session(context.Background(), mode)
	require.NoError(t, err)
	defer func() { require.NoError(t, sess.Close(context.Background())) }()

	rows, err := sess.Run(context.Background(), query, params)
	require.NoError(t, err)

	return rows
}

func TestCache_ReadThrough(t *testing.T) {
	inner := store.NewMockStore(func(string, map[string]any) ([]store.Record, error) {
		return []store.Record{store.RecordFromPairs("count", 7, "seen", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))}, nil
	})
	client := newFakeClient()
	c := New(inner, client, func(o *Options) { o.TTL = time.Minute })

	first := run(t, c, store.AccessRead, "MATCH (f) RETURN count(f) AS count", nil)
	second := run(t, c, store.AccessRead, "MATCH (f) RETURN count(f) AS count", nil)

	assert.Len(t, inner.Queries(), 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Keys, second[0].Keys)
	assert.Equal(t, "2024-05-01T00:00:00Z", second[0].Values[1])

	for _, ttl := range client.ttls {
		assert.Equal(t, time.Minute, ttl)
	}
	assert.Equal(t, 2, inner.Closed())
}

func TestCache_ParamsAreKeyed(t *testing.T) {
	inner := store.NewMockStore(func(_ string, p map[string]any) ([]store.Record, error) {
		return []store.Record{store.RecordFromPairs("id", p["finding_id"])}, nil
	})
	c := New(inner, newFakeClient())

	a := run(t, c, store.AccessRead, "q", map[string]any{"finding_id": "F-1"})
	b := run(t, c, store.AccessRead, "q", map[string]any{"finding_id": "F-2"})

	assert.Equal(t, "F-1", a[0].Values[0])
	assert.Equal(t, "F-2", b[0].Values[0])
	assert.Len(t, inner.Queries(), 2)
}

func TestCache_WriteInvalidates(t *testing.T) {
	inner := store.NewMockStore(nil)
	client := newFakeClient()
	c := New(inner, client)

	run(t, c, store.AccessRead, "MATCH (n) RETURN n", nil)
	run(t, c, store.AccessRead, "MATCH (n) RETURN n", nil)
	require.Len(t, inner.Queries(), 1)

	run(t, c, store.AccessWrite, "MERGE (a)-[:RELATED_TO]->(b)", nil)
	assert.Equal(t, "1", client.data["secmesh:query:gen"])

	run(t, c, store.AccessRead, "MATCH (n) RETURN n", nil)

	queries := inner.Queries()
	require.Len(t, queries, 3)
	assert.Equal(t, store.AccessWrite, queries[1].Mode)
	assert.Equal(t, store.AccessRead, queries[2].Mode)
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	inner := store.NewMockStore(func(string, map[string]any) ([]store.Record, error) {
		return []store.Record{store.RecordFromPairs("ok", true)}, nil
	})
	client := newFakeClient()
	client.getErr = errors.New("connection refused")
	c := New(inner, client)

	rows := run(t, c, store.AccessRead, "RETURN true AS ok", nil)
	rows = append(rows, run(t, c, store.AccessRead, "RETURN true AS ok", nil)...)

	assert.Len(t, rows, 2)
	assert.Len(t, inner.Queries(), 2)
}

func TestCache_InnerErrorNotCached(t *testing.T) {
	calls := 0
	inner := store.NewMockStore(func(string, map[string]any) ([]store.Record, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		return nil, nil
	})
	client := newFakeClient()
	c := New(inner, client)

	sess, err := c.Session(context.Background(), store.AccessRead)
	require.NoError(t, err)
	_, err = sess.Run(context.Background(), "q", nil)
	require.EqualError(t, err, "timeout")
	require.NoError(t, sess.Close(context.Background()))

	assert.Empty(t, client.data)

	run(t, c, store.AccessRead, "q", nil)
	assert.Equal(t, 2, calls)
}

func TestCache_Ping(t *testing.T) {
	inner := store.NewMockStore(nil)
	client := newFakeClient()
	c := New(inner, client)

	require.NoError(t, c.Ping(context.Background()))

	client.pingErr = errors.New("down")
	assert.ErrorContains(t, c.Ping(context.Background()), "redis: down")

	inner.PingErr = errors.New("neo4j down")
	assert.ErrorContains(t, c.Ping(context.Background()), "neo4j down")
}
