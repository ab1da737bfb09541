// Package postgres provides a Postgres-backed state-machine store keyed by
// entity kind and correlation id, with scalar payloads held in a JSONB
// column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"trackable/pkg/track"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	// Default DSN targets a local cluster; deployments pass their own.
	defaultDSN = "postgres://localhost/trackable?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a state-machine backend over a Postgres database. Every
// RunInTransaction scope maps to one database transaction.
type Store struct {
	db       *sql.DB
	registry *track.Registry
	mu       sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), verifies connectivity, and ensures the entities table
// exists.
func NewStore(dsn string, reg *track.Registry) (*Store, error) {
	if reg == nil {
		return nil, track.InvalidArgumentError{Name: "registry", Reason: "must not be nil"}
	}
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureEntitiesTable(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db, registry: reg}, nil
}

func ensureEntitiesTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (kind, id)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure entities table: %w", err)
	}
	return nil
}

// RunInTransaction runs fn against a state machine bound to one database
// transaction. The transaction commits only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(track.StateMachine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&machine{registry: s.registry, ex: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Load returns the stored scalar payload of one entity row. The error wraps
// sql.ErrNoRows when the row does not exist.
func (s *Store) Load(ctx context.Context, kind string, id uuid.UUID) (map[string]any, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM entities WHERE kind = $1 AND id = $2`, kind, id.String()).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return values, nil
}

// Count returns the number of stored entity rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// execer is the slice of sql.Tx the state machine needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// machine translates state transitions into SQL statements on one
// transaction. Subset updates lean on the JSONB concatenation operator so
// the patch happens server side.
type machine struct {
	registry *track.Registry
	ex       execer
}

var _ track.StateMachine = (*machine)(nil)

// BeginInsert implements track.StateMachine.
func (m *machine) BeginInsert(ctx context.Context, e track.Trackable) error {
	kind, id, values, err := m.rowArgs(e)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	if _, err := m.ex.ExecContext(ctx, `INSERT INTO entities (kind, id, payload) VALUES ($1, $2, $3)`, kind, id, payload); err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, id, err)
	}
	return nil
}

// MarkChanged implements track.StateMachine. An empty property list rewrites
// the whole payload; named properties travel as a partial document merged
// into the stored JSONB value.
func (m *machine) MarkChanged(ctx context.Context, e track.Trackable, properties []string) error {
	kind, id, values, err := m.rowArgs(e)
	if err != nil {
		return err
	}
	query := `UPDATE entities SET payload = $3 WHERE kind = $1 AND id = $2`
	doc := values
	if len(properties) > 0 {
		query = `UPDATE entities SET payload = payload || $3::jsonb WHERE kind = $1 AND id = $2`
		doc = make(map[string]any, len(properties))
		for _, name := range properties {
			if v, ok := values[name]; ok {
				doc[name] = v
			}
		}
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	res, err := m.ex.ExecContext(ctx, query, kind, id, payload)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %s: row not found", kind, id)
	}
	return nil
}

// MarkRemoved implements track.StateMachine.
func (m *machine) MarkRemoved(ctx context.Context, e track.Trackable) error {
	kind, id, _, err := m.rowArgs(e)
	if err != nil {
		return err
	}
	res, err := m.ex.ExecContext(ctx, `DELETE FROM entities WHERE kind = $1 AND id = $2`, kind, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: row not found", kind, id)
	}
	return nil
}

func (m *machine) rowArgs(e track.Trackable) (string, string, map[string]any, error) {
	if e == nil {
		return "", "", nil, fmt.Errorf("nil entity")
	}
	id := e.CorrelationID()
	if id == uuid.Nil {
		return "", "", nil, fmt.Errorf("%s entity carries no correlation id", e.Kind())
	}
	values, err := m.registry.ScalarValues(e)
	if err != nil {
		return "", "", nil, fmt.Errorf("resolve %s values: %w", e.Kind(), err)
	}
	return e.Kind(), id.String(), values, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
