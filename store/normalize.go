package store

import (
	"math"
	"time"
)

// Date is a calendar date without a time-of-day component.
type Date struct{ time.Time }

// Clock is a time of day, optionally carrying a zone offset.
type Clock struct {
	time.Time
	HasOffset bool
}

// Normalize converts store values into JSON-compatible shapes. Timestamps
// become RFC 3339 strings, dates ISO 8601 calendar dates, and nested maps and
// lists are converted recursively. NaN and infinite floats, which JSON
// cannot carry, become the strings Cypher prints for them. Other values pass
// through unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return normalizeFloat(t)
	case float32:
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			return normalizeFloat(f)
		}
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339Nano)
	case Date:
		return t.Format(time.DateOnly)
	case Clock:
		if t.HasOffset {
			return t.Format("15:04:05.999999999Z07:00")
		}
		return t.Format("15:04:05.999999999")
	case time.Duration:
		return t.String()
	case Record:
		return t.AsMap()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}
