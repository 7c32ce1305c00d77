// Package testutil registers an in-memory stand-in for the snapshot table the
// postgres store persists into, exposed through database/sql so store tests
// run without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

var driverSeq uint64

// SnapshotConn holds the stub's bucket payloads and failure switches. Tests
// seed Buckets before opening a store and inspect them after commits.
type SnapshotConn struct {
	Execs      []string
	Buckets    map[string][]byte
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
	RowsErr    error
}

// NewSnapshotDB registers a fresh stub driver and opens a database handle on it.
func NewSnapshotDB() (*sql.DB, *SnapshotConn) {
	conn := &SnapshotConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("printvault_snapshot_stub_%d", atomic.AddUint64(&driverSeq, 1))
	sql.Register(name, &snapshotDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type snapshotDriver struct {
	conn *SnapshotConn
}

func (d *snapshotDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *SnapshotConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

// Close implements driver.Conn.
func (c *SnapshotConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *SnapshotConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *SnapshotConn) Ping(_ context.Context) error {
	if c.FailPing {
		return errors.New("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *SnapshotConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	return &snapshotTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. DDL statements are recorded and
// acknowledged; bucket upserts land in Buckets.
func (c *SnapshotConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("exec fail")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("state upsert wants bucket and payload, got %d args", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	if c.Buckets == nil {
		c.Buckets = make(map[string][]byte)
	}
	c.Buckets[bucket] = cp
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext. The store only ever selects
// the full snapshot, so every query returns all buckets ordered by name.
func (c *SnapshotConn) QueryContext(_ context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	if c.FailQuery {
		return nil, errors.New("query fail")
	}
	names := make([]string, 0, len(c.Buckets))
	for name := range c.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]driver.Value, 0, len(names))
	for _, name := range names {
		rows = append(rows, []driver.Value{name, c.Buckets[name]})
	}
	return &snapshotRows{cols: []string{"bucket", "payload"}, rows: rows, err: c.RowsErr}, nil
}

type snapshotTx struct {
	conn *SnapshotConn
}

func (t *snapshotTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("commit fail")
	}
	return nil
}

func (t *snapshotTx) Rollback() error { return nil }

type snapshotRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *snapshotRows) Columns() []string { return r.cols }

func (r *snapshotRows) Close() error { return nil }

func (r *snapshotRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
