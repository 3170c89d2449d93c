// Package neo4j adapts the official Neo4j Go driver to store.Store.
//
// Driver values are converted on read: nodes and relationships become
// their property maps, paths become alternating lists of both, and the
// temporal types map onto time.Time, store.Date and store.Clock so the
// store package can normalize them.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/store"
)

// Options configures New.
type Options struct {
	URI      string
	Username string
	Password string
	// Database selects the target database; empty uses the server default.
	Database string
	Logger   logging.Logger
}

// Store is a store.Store backed by a Neo4j driver. The driver is shared by
// every session and is safe for concurrent use.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   logging.Logger
}

// New creates the driver and verifies connectivity.
func New(ctx context.Context, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		URI:    "neo4j://localhost:7687",
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	s := NewFromDriver(driver, opts.Database, opts.Logger)

	if err := s.Ping(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	s.logger.Info("store.neo4j.connected", "uri", opts.URI, "database", opts.Database)

	return s, nil
}

// NewFromDriver wraps an existing driver.
func NewFromDriver(driver neo4j.DriverWithContext, database string, logger logging.Logger) *Store {
	return &Store{driver: driver, database: database, logger: logging.OrNoOp(logger)}
}

// Session implements store.Store.
func (s *Store) Session(ctx context.Context, mode store.AccessMode) (store.Session, error) {
	if s == nil || s.driver == nil {
		return nil, store.ErrNoStore
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode(mode),
		DatabaseName: s.database,
	})

	return &session{sess: sess}, nil
}

// Ping implements store.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return nil
}

// Close closes the driver. Runs never call it; the owner of the Store does.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func accessMode(mode store.AccessMode) neo4j.AccessMode {
	if mode == store.AccessWrite {
		return neo4j.AccessModeWrite
	}
	return neo4j.AccessModeRead
}

type session struct {
	sess neo4j.SessionWithContext
}

func (s *session) Run(ctx context.Context, query string, params map[string]any) ([]store.Record, error) {
	result, err := s.sess.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]store.Record, 0, len(records))
	for _, rec := range records {
		values := make([]any, len(rec.Values))
		for i, v := range rec.Values {
			values[i] = Convert(v)
		}
		out = append(out, store.NewRecord(append([]string(nil), rec.Keys...), values))
	}

	return out, nil
}

func (s *session) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

const localDateTimeLayout = "2006-01-02T15:04:05.999999999"

// Convert maps a driver value onto the value set understood by store.Normalize.
func Convert(v any) any {
	switch t := v.(type) {
	case dbtype.Node:
		return convertMap(t.Props)
	case dbtype.Relationship:
		return convertMap(t.Props)
	case dbtype.Path:
		out := make([]any, 0, len(t.Nodes)+len(t.Relationships))
		for i, n := range t.Nodes {
			out = append(out, convertMap(n.Props))
			if i < len(t.Relationships) {
				out = append(out, convertMap(t.Relationships[i].Props))
			}
		}
		return out
	case dbtype.Date:
		return store.Date{Time: time.Time(t)}
	case dbtype.LocalDateTime:
		return time.Time(t).Format(localDateTimeLayout)
	case dbtype.Time:
		return store.Clock{Time: time.Time(t), HasOffset: true}
	case dbtype.LocalTime:
		return store.Clock{Time: time.Time(t)}
	case dbtype.Duration:
		return t.String()
	case dbtype.Point2D:
		return map[string]any{"srid": int64(t.SpatialRefId), "x": t.X, "y": t.Y}
	case dbtype.Point3D:
		return map[string]any{"srid": int64(t.SpatialRefId), "x": t.X, "y": t.Y, "z": t.Z}
	case map[string]any:
		return convertMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Convert(e)
		}
		return out
	default:
		return v
	}
}

func convertMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Convert(v)
	}
	return out
}
