package domain

import "context"

// Transaction exposes the record operations a persistence implementation
// must support within an atomic scope. Implementations clone records on the
// way in and out; callers never share memory with stored state.
type Transaction interface {
	// Snapshot returns a read-only view of the transaction's working state,
	// including uncommitted changes made earlier in the same transaction.
	Snapshot() TransactionView
	// Create stores a new record, minting its ID and timestamps.
	Create(rec Record) (Record, error)
	// Update applies the mutator to a copy of the stored record and writes
	// the result back, refreshing UpdatedAt.
	Update(t EntityType, id string, mutator func(Record) error) (Record, error)
	// Delete removes a record.
	Delete(t EntityType, id string) error
	// Find returns a clone of the record if present.
	Find(t EntityType, id string) (Record, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// the import validator.
type TransactionView interface {
	// List returns clones of all records of the type, ordered by ID.
	List(t EntityType) []Record
	// Find returns a clone of the record if present.
	Find(t EntityType, id string) (Record, bool)
	// Count reports how many records of the type exist.
	Count(t EntityType) int
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	// RunInTransaction executes fn against a private clone of the state and
	// swaps it in only if fn and the registered rules both succeed.
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	// View executes fn against a read-only snapshot of committed state.
	View(ctx context.Context, fn func(TransactionView) error) error
	// Get returns a clone of a committed record if present.
	Get(t EntityType, id string) (Record, bool)
	// List returns clones of all committed records of the type, ordered by ID.
	List(t EntityType) []Record
	// Counts reports committed record counts per entity type.
	Counts() map[EntityType]int
}
