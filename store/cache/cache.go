// Package cache adds a Redis read-through cache in front of a store.Store.
//
// Only read sessions are cached. Entries are keyed by a hash of the query
// text and its parameters under the current generation; every statement run
// in a write session bumps the generation, so stale rows are never served
// after the graph changed through this store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/store"
)

// ErrMiss is returned by Client.Get for absent keys.
var ErrMiss = errors.New("cache miss")

// Client is the subset of Redis used by the cache.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// redisClient adapts a go-redis client to Client.
type redisClient struct {
	client *goredis.Client
}

// NewRedisClient connects to addr, which is either host:port or a redis:// URL.
func NewRedisClient(ctx context.Context, addr string) (Client, error) {
	opts := &goredis.Options{Addr: addr}
	if u, err := goredis.ParseURL(addr); err == nil {
		opts = u
	}

	c := &redisClient{client: goredis.NewClient(opts)}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return c, nil
}

func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (r *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *redisClient) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *redisClient) Close() error { return r.client.Close() }

// Options configures New.
type Options struct {
	// TTL bounds the lifetime of an entry (default 5 minutes).
	TTL time.Duration
	// Prefix namespaces every key (default "secmesh:query").
	Prefix string
	Logger logging.Logger
}

// Store wraps an inner store with the cache.
type Store struct {
	inner  store.Store
	client Client
	ttl    time.Duration
	prefix string
	logger logging.Logger
}

// New wraps inner.
func New(inner store.Store, client Client, optFns ...func(o *Options)) *Store {
	opts := Options{
		TTL:    5 * time.Minute,
		Prefix: "secmesh:query",
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{
		inner:  inner,
		client: client,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Session implements store.Store.
func (s *Store) Session(ctx context.Context, mode store.AccessMode) (store.Session, error) {
	inner, err := s.inner.Session(ctx, mode)
	if err != nil {
		return nil, err
	}
	return &session{store: s, inner: inner, mode: mode}, nil
}

// Ping checks the inner store and Redis.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.inner.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (s *Store) generationKey() string { return s.prefix + ":gen" }

func (s *Store) key(ctx context.Context, query string, params map[string]any) (string, error) {
	gen, err := s.client.Get(ctx, s.generationKey())
	if errors.Is(err, ErrMiss) {
		gen = "0"
	} else if err != nil {
		return "", err
	}

	p, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(append([]byte(query+"\x00"), p...))

	return s.prefix + ":" + gen + ":" + hex.EncodeToString(sum[:]), nil
}

// entry is the cached form of a result. Values are stored normalized.
type entry struct {
	Keys   []string `json:"k"`
	Values []any    `json:"v"`
}

type session struct {
	store *Store
	inner store.Session
	mode  store.AccessMode
}

func (c *session) Run(ctx context.Context, query string, params map[string]any) ([]store.Record, error) {
	if c.mode == store.AccessWrite {
		rows, err := c.inner.Run(ctx, query, params)
		if err == nil {
			if gen, ierr := c.store.client.Incr(ctx, c.store.generationKey()); ierr != nil {
				c.store.logger.Warn("store.cache.invalidate_failed", "error", ierr.Error())
			} else {
				c.store.logger.Debug("store.cache.invalidated", "generation", strconv.FormatInt(gen, 10))
			}
		}
		return rows, err
	}

	key, err := c.store.key(ctx, query, params)
	if err != nil {
		c.store.logger.Warn("store.cache.unavailable", "error", err.Error())
		return c.inner.Run(ctx, query, params)
	}

	if raw, err := c.store.client.Get(ctx, key); err == nil {
		var entries []entry
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			c.store.logger.Debug("store.cache.hit", "key", key)
			return decode(entries), nil
		}
	} else if !errors.Is(err, ErrMiss) {
		c.store.logger.Warn("store.cache.get_failed", "error", err.Error())
	}

	rows, err := c.inner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(encode(rows)); err == nil {
		if err := c.store.client.Set(ctx, key, string(raw), c.store.ttl); err != nil {
			c.store.logger.Warn("store.cache.set_failed", "error", err.Error())
		}
	}

	return rows, nil
}

func (c *session) Close(ctx context.Context) error { return c.inner.Close(ctx) }

func encode(rows []store.Record) []entry {
	out := make([]entry, len(rows))
	for i, r := range rows {
		values := make([]any, len(r.Values))
		for j, v := range r.Values {
			values[j] = store.Normalize(v)
		}
		out[i] = entry{Keys: r.Keys, Values: values}
	}
	return out
}

func decode(entries []entry) []store.Record {
	out := make([]store.Record, len(entries))
	for i, e := range entries {
		out[i] = store.NewRecord(e.Keys, e.Values)
	}
	return out
}
