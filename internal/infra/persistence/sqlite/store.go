// Package sqlite is the default durable backend for self-hosted setups. The
// transactional semantics live in the in-memory store; this package wraps it
// and snapshots every bucket into a single SQLite table as JSON after each
// committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // cgo-free driver

	"printvault/internal/infra/persistence/memory"
	"printvault/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`
	upsertBucket = `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`
	selectState  = `SELECT bucket, payload FROM state`
)

// Store embeds the in-memory store for reads and transactions and mirrors
// its state into SQLite so it survives restarts.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database file at path and loads any
// previously persisted state. An empty path defaults to printvault.db in
// the working directory.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "printvault.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(createStateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(selectState)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()

	snap := memory.Snapshot{Records: map[domain.EntityType][]domain.Record{}}
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state row: %w", err)
		}
		entity := domain.EntityType(bucket)
		if _, known := domain.NewRecord(entity); !known {
			// Buckets written by newer schema revisions load as unknown; skip them.
			continue
		}
		recs, err := memory.DecodeBucket(entity, payload)
		if err != nil {
			return err
		}
		snap.Records[entity] = recs
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if len(snap.Records) > 0 {
		s.ImportState(snap)
	}
	return nil
}

func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, entity := range domain.EntityTypes() {
		data, err := memory.EncodeBucket(snap.Records[entity])
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode %s: %w", entity, err)
		}
		if _, err := tx.Exec(upsertBucket, string(entity), data); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", entity, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction defers to the embedded store, then snapshots the whole
// state to SQLite once the transaction has committed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, s.persist()
}

// DB exposes the handle for test fixtures that poke at the state table.
func (s *Store) DB() *sql.DB { return s.db }

// Path is the database file backing this store.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }
