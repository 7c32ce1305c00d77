// Package memory is the transactional record store everything else builds
// on. It serves tests and ephemeral runs directly; the sqlite and postgres
// backends embed it and write snapshots of its state after every commit.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"printvault/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Domain types re-exported so driver packages and their tests can name them
// without a second import.
type (
	Record          = domain.Record
	Change          = domain.Change
	Result          = domain.Result
	RulesEngine     = domain.RulesEngine
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// ErrNotFound is returned by Update and Delete for missing records.
var ErrNotFound = errors.New("record not found")

// recordSet holds every committed record, bucketed by entity type.
type recordSet struct {
	byType map[domain.EntityType]map[string]domain.Record
}

func newRecordSet() recordSet {
	rs := recordSet{byType: make(map[domain.EntityType]map[string]domain.Record)}
	for _, t := range domain.EntityTypes() {
		rs.byType[t] = make(map[string]domain.Record)
	}
	return rs
}

func (rs recordSet) clone() recordSet {
	out := recordSet{byType: make(map[domain.EntityType]map[string]domain.Record, len(rs.byType))}
	for t, bucket := range rs.byType {
		cp := make(map[string]domain.Record, len(bucket))
		for id, rec := range bucket {
			cp[id] = rec.CloneRecord()
		}
		out.byType[t] = cp
	}
	return out
}

func (rs *recordSet) list(t domain.EntityType) []Record {
	bucket, ok := rs.byType[t]
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec.CloneRecord())
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.RecordID(), b.RecordID()) })
	return out
}

// snapshot flattens the set into sorted slices fit for serialization.
func (rs recordSet) snapshot() Snapshot {
	snap := Snapshot{Records: make(map[domain.EntityType][]domain.Record, len(rs.byType))}
	for t := range rs.byType {
		snap.Records[t] = rs.list(t)
	}
	return snap
}

func recordSetFromSnapshot(snap Snapshot) recordSet {
	rs := newRecordSet()
	for t, recs := range snap.Records {
		bucket, ok := rs.byType[t]
		if !ok {
			// Buckets for retired entity types are dropped on load.
			continue
		}
		for _, rec := range recs {
			if rec == nil || rec.RecordID() == "" {
				continue
			}
			bucket[rec.RecordID()] = rec.CloneRecord()
		}
	}
	return rs
}

// Snapshot is a serialization-friendly copy of the full store state, keyed
// by entity type.
type Snapshot struct {
	Records map[domain.EntityType][]domain.Record
}

// EncodeBucket marshals one snapshot bucket for durable storage.
func EncodeBucket(recs []domain.Record) ([]byte, error) {
	if recs == nil {
		recs = []domain.Record{}
	}
	return json.Marshal(recs)
}

// DecodeBucket unmarshals one durable bucket back into concrete records.
func DecodeBucket(t domain.EntityType, payload []byte) ([]domain.Record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, fmt.Errorf("decode %s bucket: %w", t, err)
	}
	out := make([]domain.Record, 0, len(raws))
	for _, raw := range raws {
		rec, ok := domain.NewRecord(t)
		if !ok {
			return nil, fmt.Errorf("decode bucket: unknown entity type %q", t)
		}
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", t, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func utcNow() time.Time { return time.Now().UTC() }

// Store keeps all records in process and applies mutations through cloned
// transactions, so a failed or blocked transaction never leaks partial
// writes into the committed state.
type Store struct {
	mu     sync.RWMutex
	data   recordSet
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore returns an empty store. Transactions are checked by engine; a
// nil engine means no policy rules run.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		data:   newRecordSet(),
		engine: engine,
		nowFn:  utcNow,
	}
}

func (s *Store) newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// ExportState copies the committed state out for the snapshotting backends.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.snapshot()
}

// ImportState throws away the committed state and installs snapshot instead.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = recordSetFromSnapshot(snapshot)
}

// RulesEngine exposes the engine this store evaluates on commit.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the store clock. Tests use it for deterministic
// timestamps; a nil fn restores the real clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = utcNow
	}
	s.nowFn = fn
}

// transaction collects mutations against a private clone of the store.
type transaction struct {
	store   *Store
	work    recordSet
	changes []Change
	now     time.Time
}

// readView exposes a record set without any mutation surface.
type readView struct {
	data *recordSet
}

// RunInTransaction runs fn against a cloned state, evaluates the rules
// engine over the accumulated changes, and swaps the clone in only when
// both succeed. Any error leaves the committed state untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		work:  s.data.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, readView{data: &tx.work}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.data = tx.work
	return result, nil
}

// View runs fn against a read-only copy of the committed state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.data.clone()
	return fn(readView{data: &snap})
}

// Get returns a clone of a committed record.
func (s *Store) Get(t domain.EntityType, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.data.byType[t]
	if !ok {
		return nil, false
	}
	rec, ok := bucket[id]
	if !ok {
		return nil, false
	}
	return rec.CloneRecord(), true
}

// List returns clones of all committed records of a type, ordered by ID.
func (s *Store) List(t domain.EntityType) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.list(t)
}

// Counts reports committed record counts per entity type.
func (s *Store) Counts() map[domain.EntityType]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.EntityType]int, len(s.data.byType))
	for t, bucket := range s.data.byType {
		out[t] = len(bucket)
	}
	return out
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transaction's working state to callers that need to
// read what they have written so far.
func (tx *transaction) Snapshot() TransactionView {
	return readView{data: &tx.work}
}

// Create stores a new record, minting its ID and stamping timestamps. The
// caller's record is not mutated.
func (tx *transaction) Create(rec Record) (Record, error) {
	if rec == nil {
		return nil, errors.New("create: nil record")
	}
	bucket, ok := tx.work.byType[rec.EntityType()]
	if !ok {
		return nil, fmt.Errorf("create: unknown entity type %q", rec.EntityType())
	}
	stored := rec.CloneRecord()
	meta := stored.Meta()
	meta.ID = tx.store.newID()
	meta.CreatedAt = tx.now
	meta.UpdatedAt = tx.now
	bucket[meta.ID] = stored
	tx.recordChange(Change{Entity: stored.EntityType(), Action: domain.ActionCreate, After: stored.CloneRecord()})
	return stored.CloneRecord(), nil
}

// Update applies mutator to a copy of the stored record and writes it back.
// Identity and creation time survive the mutator.
func (tx *transaction) Update(t domain.EntityType, id string, mutator func(Record) error) (Record, error) {
	bucket, ok := tx.work.byType[t]
	if !ok {
		return nil, fmt.Errorf("update: unknown entity type %q", t)
	}
	current, ok := bucket[id]
	if !ok {
		return nil, fmt.Errorf("update %s %s: %w", t, id, ErrNotFound)
	}
	before := current.CloneRecord()
	updated := current.CloneRecord()
	if mutator != nil {
		if err := mutator(updated); err != nil {
			return nil, err
		}
	}
	meta := updated.Meta()
	meta.ID = id
	meta.CreatedAt = before.Meta().CreatedAt
	meta.UpdatedAt = tx.now
	bucket[id] = updated
	tx.recordChange(Change{Entity: t, Action: domain.ActionUpdate, Before: before, After: updated.CloneRecord()})
	return updated.CloneRecord(), nil
}

// Delete removes a record.
func (tx *transaction) Delete(t domain.EntityType, id string) error {
	bucket, ok := tx.work.byType[t]
	if !ok {
		return fmt.Errorf("delete: unknown entity type %q", t)
	}
	current, ok := bucket[id]
	if !ok {
		return fmt.Errorf("delete %s %s: %w", t, id, ErrNotFound)
	}
	delete(bucket, id)
	tx.recordChange(Change{Entity: t, Action: domain.ActionDelete, Before: current})
	return nil
}

// Find returns a clone of a record from the transaction's working state.
func (tx *transaction) Find(t domain.EntityType, id string) (Record, bool) {
	bucket, ok := tx.work.byType[t]
	if !ok {
		return nil, false
	}
	rec, ok := bucket[id]
	if !ok {
		return nil, false
	}
	return rec.CloneRecord(), true
}

// List returns clones of all records of a type, ordered by ID.
func (v readView) List(t domain.EntityType) []Record {
	return v.data.list(t)
}

// Find returns a clone of a record if present.
func (v readView) Find(t domain.EntityType, id string) (Record, bool) {
	bucket, ok := v.data.byType[t]
	if !ok {
		return nil, false
	}
	rec, ok := bucket[id]
	if !ok {
		return nil, false
	}
	return rec.CloneRecord(), true
}

// Count reports how many records of a type exist.
func (v readView) Count(t domain.EntityType) int {
	return len(v.data.byType[t])
}
