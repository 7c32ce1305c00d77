// Package postgres keeps state in a shared PostgreSQL server for deployments
// where several replicas serve one inventory. Like the sqlite backend it
// layers snapshot persistence over the in-memory transactional store, one
// JSONB row per entity bucket.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"printvault/internal/infra/persistence/memory"
	"printvault/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	// Used when no DSN is configured; assumes a local trusted server.
	defaultDSN = "postgres://localhost/printvault?sslmode=disable"

	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	upsertBucket = `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`
	selectState  = `SELECT bucket, payload FROM state`
)

// sqlOpen is swapped by tests to stand in a stub connection.
var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store layers Postgres snapshot persistence over the in-memory store.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore connects to dsn (defaultDSN when empty), creates the state table
// if missing and hydrates the in-memory store from any snapshot found.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	open := sqlOpen
	openMu.Unlock()
	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	snap, err := loadSnapshot(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	if len(snap.Records) > 0 {
		mem.ImportState(snap)
	}
	return &Store{Store: mem, db: db}, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectState)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()

	snap := memory.Snapshot{Records: map[domain.EntityType][]domain.Record{}}
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		entity := domain.EntityType(bucket)
		if _, known := domain.NewRecord(entity); !known {
			continue
		}
		recs, err := memory.DecodeBucket(entity, payload)
		if err != nil {
			return memory.Snapshot{}, err
		}
		snap.Records[entity] = recs
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snap, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, entity := range domain.EntityTypes() {
		data, err := memory.EncodeBucket(snap.Records[entity])
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode %s: %w", entity, err)
		}
		if _, err := tx.ExecContext(ctx, upsertBucket, string(entity), data); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", entity, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction defers to the embedded store, then snapshots the whole
// state to Postgres once the transaction has committed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, s.persist(ctx)
}

// DB exposes the handle for test fixtures.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }
