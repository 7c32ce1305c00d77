package backup

import (
	"context"
	"io"
	"log/slog"
	"time"

	"printvault/internal/blob"
	"printvault/pkg/domain"
)

// Operation names used for lock grants, metrics, and audit entries.
const (
	OpExport   = "export"
	OpValidate = "validate_import"
	OpCommit   = "commit_import"
	OpWipe     = "delete_all"
)

// Options configures an Engine. The zero value works against a store alone:
// no blob store means media degrades to warnings, and the remaining fields
// fall back to package defaults.
type Options struct {
	// Blob stores media payloads. Optional.
	Blob blob.Store
	// Logger receives operation-level log lines. Defaults to slog.Default.
	Logger *slog.Logger
	// Lock overrides the engine's operation lock, letting several engines
	// share one. Defaults to a fresh lock with LockTTL.
	Lock *OperationLock
	// LockTTL bounds how long an abandoned grant blocks other operations.
	LockTTL time.Duration
	// Limits caps archive decompression.
	Limits Limits
	// MaxErrorSamples bounds per-type error samples in validation reports.
	MaxErrorSamples int
	// Clock supplies timestamps for manifests and lock grants. Defaults to
	// time.Now.
	Clock func() time.Time
}

// Engine implements the bulk export and import operations over a store and
// a blob store. One engine guards one store: all four operations contend on
// the same operation lock, shared for reads and exclusive for mutations.
type Engine struct {
	store   domain.PersistentStore
	blobs   blob.Store
	lock    *OperationLock
	limits  Limits
	samples int
	logger  *slog.Logger
	clock   func() time.Time
}

// NewEngine builds an engine for the store.
func NewEngine(store domain.PersistentStore, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	lock := opts.Lock
	if lock == nil {
		lock = NewOperationLock(opts.LockTTL, clock)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	samples := opts.MaxErrorSamples
	if samples <= 0 {
		samples = DefaultMaxErrorSamples
	}
	return &Engine{
		store:   store,
		blobs:   opts.Blob,
		lock:    lock,
		limits:  opts.Limits.withDefaults(),
		samples: samples,
		logger:  logger,
		clock:   clock,
	}
}

// Lock exposes the operation lock for status reporting.
func (e *Engine) Lock() *OperationLock {
	return e.lock
}

// Export writes a full archive of committed state to w under a shared lock.
func (e *Engine) Export(ctx context.Context, w io.Writer) (ExportSummary, error) {
	token, err := e.lock.TryShared(OpExport)
	if err != nil {
		return ExportSummary{}, err
	}
	defer e.lock.Release(token)

	var summary ExportSummary
	err = e.store.View(ctx, func(view domain.TransactionView) error {
		var inner error
		summary, inner = writeArchive(ctx, view, e.blobs, w, e.clock())
		return inner
	})
	if err != nil {
		return ExportSummary{}, err
	}
	e.logger.InfoContext(ctx, "export complete",
		"records", summary.RecordsTotal,
		"media", summary.MediaFiles,
		"warnings", len(summary.Warnings))
	return summary, nil
}

// ValidateImport dry-runs an archive against committed state under a shared
// lock. Structural problems come back as a StructuralError; record problems
// land in the report and never touch the store.
func (e *Engine) ValidateImport(ctx context.Context, r io.ReaderAt, size int64, opts ValidateOptions) (*ValidationReport, error) {
	token, err := e.lock.TryShared(OpValidate)
	if err != nil {
		return nil, err
	}
	defer e.lock.Release(token)

	a, err := OpenArchive(r, size, e.limits)
	if err != nil {
		return nil, err
	}
	if opts.MaxErrorSamples <= 0 {
		opts.MaxErrorSamples = e.samples
	}
	var report *ValidationReport
	err = e.store.View(ctx, func(view domain.TransactionView) error {
		var inner error
		report, inner = validateArchive(a, view, opts)
		return inner
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "import validated",
		"valid", report.Valid,
		"records", report.Stats.TotalRecords,
		"invalid", report.Stats.TotalRecords-report.Stats.ValidRecords)
	return report, nil
}

// CommitImport replays an archive into the store under an exclusive lock.
func (e *Engine) CommitImport(ctx context.Context, r io.ReaderAt, size int64, mode Mode) (*CommitReport, error) {
	token, err := e.lock.TryExclusive(OpCommit)
	if err != nil {
		return nil, err
	}
	defer e.lock.Release(token)

	a, err := OpenArchive(r, size, e.limits)
	if err != nil {
		return nil, err
	}
	report, err := commitArchive(ctx, a, e.store, e.blobs, mode, e.logger)
	if err != nil {
		return report, err
	}
	e.logger.InfoContext(ctx, "import committed",
		"mode", string(mode),
		"imported", report.ImportedRecords,
		"errors", report.ErrorsCount,
		"media", report.MediaFiles)
	return report, nil
}

// WipeSummary reports what DeleteAll removed.
type WipeSummary struct {
	RecordsDeleted int `json:"records_deleted"`
	MediaDeleted   int `json:"media_deleted"`
}

// DeleteAll removes every record and media file under an exclusive lock.
func (e *Engine) DeleteAll(ctx context.Context) (*WipeSummary, error) {
	token, err := e.lock.TryExclusive(OpWipe)
	if err != nil {
		return nil, err
	}
	defer e.lock.Release(token)

	wiped, err := wipeStore(ctx, e.store)
	if err != nil {
		return nil, err
	}
	deleted, sweepErr := sweepBlobs(ctx, e.blobs)
	summary := &WipeSummary{RecordsDeleted: wiped, MediaDeleted: deleted}
	if sweepErr != nil {
		return summary, sweepErr
	}
	e.logger.InfoContext(ctx, "all data deleted",
		"records", wiped,
		"media", deleted)
	return summary, nil
}
