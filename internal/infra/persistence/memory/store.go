// Package memory provides the reference state-machine backend: transitions
// stage rows on a copy-on-write clone and commit only when the whole walk
// succeeds.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"trackable/pkg/track"
)

// Transition operations as they appear in the journal.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Row is one persisted entity: kind, correlation id and scalar values.
type Row struct {
	Kind   string
	ID     uuid.UUID
	Values map[string]any
}

// Transition is one committed state-machine call in arrival order.
type Transition struct {
	Seq        int
	Op         string
	Kind       string
	ID         uuid.UUID
	Properties []string
}

type rowKey struct {
	kind string
	id   uuid.UUID
}

// Store holds committed rows plus the journal of transitions that produced
// them. Transactions serialize on the store mutex.
type Store struct {
	mu       sync.Mutex
	registry *track.Registry
	rows     map[rowKey]Row
	journal  []Transition
	seq      int
}

// NewStore creates an empty store resolving scalar payloads through reg.
func NewStore(reg *track.Registry) *Store {
	return &Store{registry: reg, rows: make(map[rowKey]Row)}
}

// RunInTransaction runs fn against a staged clone of the store. The stage
// implements track.StateMachine; its rows and journal entries replace the
// store's only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(track.StateMachine) error) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{
		registry: s.registry,
		rows:     cloneRows(s.rows),
		seq:      s.seq,
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.rows = tx.rows
	s.journal = append(s.journal, tx.journal...)
	s.seq = tx.seq
	return nil
}

// Get returns a detached copy of one committed row.
func (s *Store) Get(kind string, id uuid.UUID) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[rowKey{kind: kind, id: id}]
	if !ok {
		return Row{}, false
	}
	return cloneRow(row), true
}

// Len returns the number of committed rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Journal returns a copy of the committed transition log in sequence order.
func (s *Store) Journal() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.journal))
	copy(out, s.journal)
	return out
}

// transaction is the staged state of one RunInTransaction scope.
type transaction struct {
	registry *track.Registry
	rows     map[rowKey]Row
	journal  []Transition
	seq      int
}

var _ track.StateMachine = (*transaction)(nil)

// BeginInsert implements track.StateMachine.
func (t *transaction) BeginInsert(_ context.Context, e track.Trackable) error {
	key, values, err := t.keyAndValues(e)
	if err != nil {
		return err
	}
	if _, exists := t.rows[key]; exists {
		return fmt.Errorf("insert %s %s: row exists", key.kind, key.id)
	}
	t.rows[key] = Row{Kind: key.kind, ID: key.id, Values: values}
	t.log(OpInsert, key, nil)
	return nil
}

// MarkChanged implements track.StateMachine. An empty property list refreshes
// every scalar; named properties patch only those values.
func (t *transaction) MarkChanged(_ context.Context, e track.Trackable, properties []string) error {
	key, values, err := t.keyAndValues(e)
	if err != nil {
		return err
	}
	row, ok := t.rows[key]
	if !ok {
		return fmt.Errorf("update %s %s: row not found", key.kind, key.id)
	}
	if len(properties) == 0 {
		row.Values = values
	} else {
		for _, name := range properties {
			if v, ok := values[name]; ok {
				row.Values[name] = v
			}
		}
	}
	t.rows[key] = row
	t.log(OpUpdate, key, append([]string(nil), properties...))
	return nil
}

// MarkRemoved implements track.StateMachine.
func (t *transaction) MarkRemoved(_ context.Context, e track.Trackable) error {
	key, _, err := t.keyAndValues(e)
	if err != nil {
		return err
	}
	if _, ok := t.rows[key]; !ok {
		return fmt.Errorf("delete %s %s: row not found", key.kind, key.id)
	}
	delete(t.rows, key)
	t.log(OpDelete, key, nil)
	return nil
}

func (t *transaction) keyAndValues(e track.Trackable) (rowKey, map[string]any, error) {
	if e == nil {
		return rowKey{}, nil, fmt.Errorf("nil entity")
	}
	id := e.CorrelationID()
	if id == uuid.Nil {
		return rowKey{}, nil, fmt.Errorf("%s entity carries no correlation id", e.Kind())
	}
	values, err := t.registry.ScalarValues(e)
	if err != nil {
		return rowKey{}, nil, fmt.Errorf("resolve %s values: %w", e.Kind(), err)
	}
	return rowKey{kind: e.Kind(), id: id}, values, nil
}

func (t *transaction) log(op string, key rowKey, properties []string) {
	t.seq++
	t.journal = append(t.journal, Transition{
		Seq:        t.seq,
		Op:         op,
		Kind:       key.kind,
		ID:         key.id,
		Properties: properties,
	})
}

func cloneRows(rows map[rowKey]Row) map[rowKey]Row {
	out := make(map[rowKey]Row, len(rows))
	for k, v := range rows {
		out[k] = cloneRow(v)
	}
	return out
}

func cloneRow(row Row) Row {
	values := make(map[string]any, len(row.Values))
	for name, v := range row.Values {
		values[name] = v
	}
	row.Values = values
	return row
}
