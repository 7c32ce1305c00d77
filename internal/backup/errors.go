// Package backup implements the bulk export and import engine: archive
// writing and reading, dependency ordering, dry-run validation, transactional
// commit, and media synchronization. All operations coordinate through a
// process-wide operation lock.
package backup

import (
	"errors"
	"fmt"
)

// StructuralError reports an archive that cannot be processed at all:
// not a zip, malformed manifest, missing or unknown tables, unsafe member
// paths, or decompressed size beyond the configured caps. Structural errors
// abort an operation before any record is examined or written.
type StructuralError struct {
	Reason string
	Path   string // offending archive member, when one is identifiable
}

func (e *StructuralError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid archive: %s: %s", e.Path, e.Reason)
	}
	return "invalid archive: " + e.Reason
}

// structural builds a StructuralError without a member path.
func structural(format string, args ...any) *StructuralError {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError reports a single record that failed dry-run checks. It is
// collected into reports rather than returned, except when a caller asks for
// programmatic access to one failure.
type ValidationError struct {
	Type   string // display name of the entity type
	Key    string // archive row identifier
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Type, e.Key, e.Reason)
}

// CommitError reports a record that passed validation but failed to apply,
// for example a uniqueness conflict introduced between rows.
type CommitError struct {
	Type   string
	Key    string
	Reason string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Type, e.Key, e.Reason)
}

// ConcurrencyError reports that the operation lock could not be acquired
// because another export or import is in progress. Callers fail fast; there
// is no queueing.
type ConcurrencyError struct {
	Operation string // operation that was refused
	Holder    string // operation currently holding the lock
}

func (e *ConcurrencyError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("cannot start %s: %s in progress", e.Operation, e.Holder)
	}
	return fmt.Sprintf("cannot start %s: another operation in progress", e.Operation)
}

// MediaError reports a media file that could not be transferred. Media
// problems degrade to warnings; they never fail the record they belong to.
type MediaError struct {
	Key    string
	Reason string
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s: %s", e.Key, e.Reason)
}

// IsStructural reports whether err is or wraps a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsConcurrency reports whether err is or wraps a ConcurrencyError.
func IsConcurrency(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}
