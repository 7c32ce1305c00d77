package core

import (
	"fmt"
	"os"

	"printvault/internal/infra/persistence/memory"
	"printvault/internal/infra/persistence/postgres"
	"printvault/internal/infra/persistence/sqlite"
	"printvault/pkg/domain"
)

// StorageDriver identifies a persistent storage backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // ephemeral, tests
	StorageSQLite   StorageDriver = "sqlite"   // embedded file, default
	StoragePostgres StorageDriver = "postgres" // shared server
)

// Persistence contracts re-exported from pkg/domain so core call sites and
// tests do not need the extra import.
type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore

	// MemoryStore is the in-memory store tests construct directly.
	MemoryStore = memory.Store
)

// NewMemoryStore constructs an in-memory store guarded by engine.
func NewMemoryStore(engine *RulesEngine) *MemoryStore {
	return memory.NewStore(engine)
}

// NewSQLiteStore opens the embedded store backed by the file at path. An
// empty path picks printvault.db in the working directory.
func NewSQLiteStore(path string, engine *RulesEngine) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine)
}

// NewPostgresStore connects to the server at dsn and prepares its schema.
func NewPostgresStore(dsn string, engine *RulesEngine) (*postgres.Store, error) {
	return postgres.NewStore(dsn, engine)
}

// OpenPersistentStore builds the store selected by
// PRINTVAULT_STORAGE_DRIVER, defaulting to sqlite. The sqlite driver reads
// its file path from PRINTVAULT_SQLITE_PATH, postgres its DSN from
// PRINTVAULT_POSTGRES_DSN.
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	switch driver := StorageDriver(os.Getenv("PRINTVAULT_STORAGE_DRIVER")); driver {
	case "", StorageSQLite:
		st, err := NewSQLiteStore(os.Getenv("PRINTVAULT_SQLITE_PATH"), engine)
		if err != nil {
			return nil, err
		}
		return st, nil
	case StorageMemory:
		return NewMemoryStore(engine), nil
	case StoragePostgres:
		st, err := NewPostgresStore(os.Getenv("PRINTVAULT_POSTGRES_DSN"), engine)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
