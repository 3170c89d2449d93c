package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrNoStore is returned when an operation needs the graph store but none was injected.
var ErrNoStore = errors.New("graph store not available")

// AccessMode selects read or write routing for a Session.
type AccessMode int

const (
	// AccessRead opens a read-only session. All tool calls use it.
	AccessRead AccessMode = iota
	// AccessWrite opens a session that may mutate the graph.
	AccessWrite
)

// String returns the mode name.
func (m AccessMode) String() string {
	if m == AccessWrite {
		return "write"
	}
	return "read"
}

// Store hands out scoped sessions. Implementations must be safe for
// concurrent use by multiple runs.
type Store interface {
	Session(ctx context.Context, mode AccessMode) (Session, error)
}

// Session is a short-lived unit of work against the store. Callers must
// Close it on every exit path.
type Session interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
	Close(ctx context.Context) error
}

// Pinger is implemented by stores that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Record is one result row. Keys and Values are parallel slices in column order.
type Record struct {
	Keys   []string
	Values []any
}

// NewRecord builds a Record from parallel key/value slices.
func NewRecord(keys []string, values []any) Record {
	return Record{Keys: keys, Values: values}
}

// RecordFromPairs builds a Record from key/value pairs given as alternating
// arguments, preserving argument order.
func RecordFromPairs(pairs ...any) Record {
	r := Record{}
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		r.Keys = append(r.Keys, k)
		r.Values = append(r.Values, pairs[i+1])
	}
	return r
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// AsMap returns the record as a map with normalized values.
func (r Record) AsMap() map[string]any {
	m := make(map[string]any, len(r.Keys))
	for i, k := range r.Keys {
		if i < len(r.Values) {
			m[k] = Normalize(r.Values[i])
		}
	}
	return m
}

// MarshalJSON encodes the record as a JSON object whose members follow
// column order. Values are normalized first.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		var v any
		if i < len(r.Values) {
			v = Normalize(r.Values[i])
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
