package backup

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a lock grant survives without release.
// Grants older than the TTL are treated as abandoned by a crashed operation
// and expire on the next acquisition attempt.
const DefaultLockTTL = 15 * time.Minute

// OperationLock serializes export and import operations across the process.
// Reads of the store (export, validate) share the lock; mutations (commit,
// wipe) need it exclusively. Acquisition never waits: a busy lock yields a
// ConcurrencyError immediately.
//
// Each grant is identified by an opaque owner token so that only the code
// path that acquired the lock can release it.
type OperationLock struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   func() time.Time
	holders map[string]lockGrant
}

type lockGrant struct {
	operation string
	exclusive bool
	acquired  time.Time
}

// NewOperationLock constructs a lock with the given grant TTL. A zero ttl
// uses DefaultLockTTL; a nil clock uses time.Now.
func NewOperationLock(ttl time.Duration, clock func() time.Time) *OperationLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &OperationLock{
		ttl:     ttl,
		clock:   clock,
		holders: make(map[string]lockGrant),
	}
}

// TryShared acquires the lock in shared mode for a read-only operation.
// It fails fast with a ConcurrencyError while an exclusive grant is live.
func (l *OperationLock) TryShared(operation string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	for _, g := range l.holders {
		if g.exclusive {
			return "", &ConcurrencyError{Operation: operation, Holder: g.operation}
		}
	}
	return l.grantLocked(operation, false), nil
}

// TryExclusive acquires the lock exclusively for a mutating operation.
// It fails fast with a ConcurrencyError while any grant is live.
func (l *OperationLock) TryExclusive(operation string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	for _, g := range l.holders {
		return "", &ConcurrencyError{Operation: operation, Holder: g.operation}
	}
	return l.grantLocked(operation, true), nil
}

// Release returns a grant. Unknown or already-expired tokens report false.
func (l *OperationLock) Release(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.holders[token]; !ok {
		return false
	}
	delete(l.holders, token)
	return true
}

// Holders lists the operations currently holding the lock, for status
// endpoints and tests.
func (l *OperationLock) Holders() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	out := make([]string, 0, len(l.holders))
	for _, g := range l.holders {
		out = append(out, g.operation)
	}
	return out
}

func (l *OperationLock) grantLocked(operation string, exclusive bool) string {
	token := uuid.NewString()
	l.holders[token] = lockGrant{
		operation: operation,
		exclusive: exclusive,
		acquired:  l.clock(),
	}
	return token
}

func (l *OperationLock) expireLocked() {
	now := l.clock()
	for token, g := range l.holders {
		if now.Sub(g.acquired) > l.ttl {
			delete(l.holders, token)
		}
	}
}
