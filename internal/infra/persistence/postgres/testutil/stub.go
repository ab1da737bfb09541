// Package testutil provides a stub database/sql driver that mimics the tiny
// slice of Postgres the entity store speaks: one entities table keyed by
// kind and id, JSONB payload semantics included.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// RowKey addresses one stored row.
type RowKey struct {
	Kind string
	ID   string
}

// StubConn records statements and keeps rows in memory. The stub has no
// transaction isolation: writes land immediately and Rollback only counts,
// so failure tests assert on the counters rather than on row state.
type StubConn struct {
	Execs      []string
	Rows       map[RowKey]string
	Commits    int
	Rollbacks  int
	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailExec   bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[RowKey]string)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	head := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(head, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(head, "INSERT INTO"):
		key, payload, err := rowArgs(args)
		if err != nil {
			return nil, err
		}
		if _, exists := c.Rows[key]; exists {
			return nil, fmt.Errorf("duplicate key value violates unique constraint %q", "entities_pkey")
		}
		c.Rows[key] = payload
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(head, "UPDATE"):
		key, payload, err := rowArgs(args)
		if err != nil {
			return nil, err
		}
		current, exists := c.Rows[key]
		if !exists {
			return driver.RowsAffected(0), nil
		}
		if strings.Contains(query, "||") {
			merged, err := mergeJSON(current, payload)
			if err != nil {
				return nil, err
			}
			c.Rows[key] = merged
		} else {
			c.Rows[key] = payload
		}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(head, "DELETE FROM"):
		key, err := keyArgs(args)
		if err != nil {
			return nil, err
		}
		if _, exists := c.Rows[key]; !exists {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, key)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	upper := strings.ToUpper(query)
	if strings.Contains(upper, "COUNT(*)") {
		return &stubRows{
			cols: []string{"count"},
			rows: [][]driver.Value{{int64(len(c.Rows))}},
		}, nil
	}
	if strings.Contains(upper, "SELECT PAYLOAD") {
		key, err := keyArgs(args)
		if err != nil {
			return nil, err
		}
		rows := &stubRows{cols: []string{"payload"}}
		if payload, ok := c.Rows[key]; ok {
			rows.rows = [][]driver.Value{{[]byte(payload)}}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("cannot answer query: %s", query)
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.Rollbacks++
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func keyArgs(args []driver.NamedValue) (RowKey, error) {
	if len(args) < 2 {
		return RowKey{}, fmt.Errorf("want kind and id args, got %d", len(args))
	}
	return RowKey{Kind: asString(args[0].Value), ID: asString(args[1].Value)}, nil
}

func rowArgs(args []driver.NamedValue) (RowKey, string, error) {
	if len(args) < 3 {
		return RowKey{}, "", fmt.Errorf("want kind, id and payload args, got %d", len(args))
	}
	key, err := keyArgs(args)
	if err != nil {
		return RowKey{}, "", err
	}
	return key, asString(args[2].Value), nil
}

func asString(v driver.Value) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// mergeJSON overlays the patch document onto the current one the way the
// JSONB concatenation operator does.
func mergeJSON(current, patch string) (string, error) {
	doc := make(map[string]any)
	if err := json.Unmarshal([]byte(current), &doc); err != nil {
		return "", fmt.Errorf("merge current payload: %w", err)
	}
	overlay := make(map[string]any)
	if err := json.Unmarshal([]byte(patch), &overlay); err != nil {
		return "", fmt.Errorf("merge patch payload: %w", err)
	}
	for k, v := range overlay {
		doc[k] = v
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("merge encode: %w", err)
	}
	return string(out), nil
}
