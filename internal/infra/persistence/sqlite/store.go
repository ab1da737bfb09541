// Package sqlite persists tracked entities in a single SQLite table keyed by
// kind and correlation id, with scalar payloads stored as JSON blobs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"trackable/pkg/track"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Store is a state-machine backend over a SQLite database. Every
// RunInTransaction scope maps to one database transaction, so a failed walk
// leaves no partial rows behind.
type Store struct {
	db       *sql.DB
	registry *track.Registry
	mu       sync.Mutex
	path     string
}

// NewStore opens or creates the database at path and ensures the entities
// table exists. An empty path falls back to trackable.db in the working
// directory.
func NewStore(path string, reg *track.Registry) (*Store, error) {
	if reg == nil {
		return nil, track.InvalidArgumentError{Name: "registry", Reason: "must not be nil"}
	}
	if path == "" {
		path = "trackable.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (kind, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	return &Store{db: db, registry: reg, path: path}, nil
}

// RunInTransaction runs fn against a state machine bound to one database
// transaction. The transaction commits only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(track.StateMachine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
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
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Load returns the stored scalar payload of one entity row. The error wraps
// sql.ErrNoRows when the row does not exist.
func (s *Store) Load(ctx context.Context, kind string, id uuid.UUID) (map[string]any, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM entities WHERE kind = ? AND id = ?`, kind, id.String()).Scan(&payload)
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// execer is the slice of sql.Tx the state machine needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// machine translates state transitions into SQL statements on one
// transaction.
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
	if _, err := m.ex.ExecContext(ctx, `INSERT INTO entities (kind, id, payload) VALUES (?, ?, ?)`, kind, id, payload); err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, id, err)
	}
	return nil
}

// MarkChanged implements track.StateMachine. An empty property list rewrites
// the whole payload; named properties are patched into the stored document.
func (m *machine) MarkChanged(ctx context.Context, e track.Trackable, properties []string) error {
	kind, id, values, err := m.rowArgs(e)
	if err != nil {
		return err
	}
	var payload []byte
	if len(properties) == 0 {
		payload, err = json.Marshal(values)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
	} else {
		payload, err = m.patchedPayload(ctx, kind, id, values, properties)
		if err != nil {
			return err
		}
	}
	res, err := m.ex.ExecContext(ctx, `UPDATE entities SET payload = ? WHERE kind = ? AND id = ?`, payload, kind, id)
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
	res, err := m.ex.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND id = ?`, kind, id)
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

// patchedPayload reads the stored document and overlays the named properties
// with their current values.
func (m *machine) patchedPayload(ctx context.Context, kind, id string, values map[string]any, properties []string) ([]byte, error) {
	var current []byte
	err := m.ex.QueryRowContext(ctx, `SELECT payload FROM entities WHERE kind = ? AND id = ?`, kind, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s %s: row not found", kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(current, &doc); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	for _, name := range properties {
		if v, ok := values[name]; ok {
			doc[name] = v
		}
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return payload, nil
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
