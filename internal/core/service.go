package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"printvault/internal/backup"
	"printvault/internal/blob"
)

// MetricsRecorder receives one observation per completed service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span opened by a Tracer.
type TraceSpan interface {
	End(err error)
}

// Clock supplies the current time for audit stamps and duration measurement.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Service exposes higher-level transactional CRUD operations plus the bulk
// export/import surface. All operations run through the configured store's
// rules engine; export and import additionally coordinate through the backup
// engine's operation lock.
type Service struct {
	store      PersistentStore
	blobs      blob.Store
	backup     *backup.Engine
	backupOpts backup.Options
	logger     *slog.Logger
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	clock      Clock
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithBlobStore attaches a media blob store. Without one, exports omit media
// payloads and imports record media references as warnings.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = store }
}

// WithLogger routes service and backup-engine logging through logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetricsRecorder attaches an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer that spans each operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithAuditRecorder attaches an audit sink.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = rec }
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithBackupOptions seeds the backup engine configuration. Store, blob store,
// logger and clock are always taken from the service itself.
func WithBackupOptions(opts backup.Options) ServiceOption {
	return func(s *Service) { s.backupOpts = opts }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		clock:  ClockFunc(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	engineOpts := s.backupOpts
	engineOpts.Blob = s.blobs
	engineOpts.Logger = s.logger
	if engineOpts.Clock == nil {
		engineOpts.Clock = s.clock.Now
	}
	s.backup = backup.NewEngine(store, engineOpts)
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Blobs returns the configured media store, which may be nil.
func (s *Service) Blobs() blob.Store {
	return s.blobs
}

// Backup returns the backup engine coordinating export and import operations.
func (s *Service) Backup() *backup.Engine {
	return s.backup
}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (s *Service) startSpan(ctx context.Context, operation string) (context.Context, TraceSpan) {
	if s.tracer == nil {
		return ctx, noopSpan{}
	}
	return s.tracer.Start(ctx, operation)
}

func (s *Service) finishOperation(ctx context.Context, operation string, entity EntityType, action Action, entityID string, started time.Time, err error) {
	duration := s.clock.Now().Sub(started)
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, duration)
	}
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    entity,
		Action:    action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Detail = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// CreateRecord persists a new record of any cataloged type.
func (s *Service) CreateRecord(ctx context.Context, rec Record) (Record, Result, error) {
	operation := "create_" + string(rec.EntityType())
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, operation)
	var created Record
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var txErr error
		created, txErr = tx.Create(rec)
		return txErr
	})
	span.End(err)
	id := ""
	if created != nil {
		id = created.RecordID()
	}
	s.finishOperation(ctx, operation, rec.EntityType(), ActionCreate, id, started, err)
	return created, res, err
}

// UpdateRecord applies mutator to the identified record.
func (s *Service) UpdateRecord(ctx context.Context, entity EntityType, id string, mutator func(Record) error) (Record, Result, error) {
	operation := "update_" + string(entity)
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, operation)
	var updated Record
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var txErr error
		updated, txErr = tx.Update(entity, id, mutator)
		return txErr
	})
	span.End(err)
	s.finishOperation(ctx, operation, entity, ActionUpdate, id, started, err)
	return updated, res, err
}

// DeleteRecord removes the identified record.
func (s *Service) DeleteRecord(ctx context.Context, entity EntityType, id string) (Result, error) {
	operation := "delete_" + string(entity)
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, operation)
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.Delete(entity, id)
	})
	span.End(err)
	s.finishOperation(ctx, operation, entity, ActionDelete, id, started, err)
	return res, err
}

// GetRecord fetches a record by type and id.
func (s *Service) GetRecord(_ context.Context, entity EntityType, id string) (Record, error) {
	rec, ok := s.store.Get(entity, id)
	if !ok {
		return nil, ErrNotFound{Entity: entity, ID: id}
	}
	return rec, nil
}

// ListRecords returns all records of the given type sorted by id.
func (s *Service) ListRecords(_ context.Context, entity EntityType) []Record {
	return s.store.List(entity)
}

// Counts reports the number of stored records per entity type.
func (s *Service) Counts(_ context.Context) map[EntityType]int {
	return s.store.Counts()
}

// Export streams a complete archive of the current state to w.
func (s *Service) Export(ctx context.Context, w io.Writer) (backup.ExportSummary, error) {
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, backup.OpExport)
	summary, err := s.backup.Export(ctx, w)
	span.End(err)
	s.finishOperation(ctx, backup.OpExport, "", "", "", started, err)
	return summary, err
}

// ValidateImport dry-runs an archive against the current state without
// mutating it, previewing the default merge mode.
func (s *Service) ValidateImport(ctx context.Context, archive []byte) (*backup.ValidationReport, error) {
	return s.ValidateImportFrom(ctx, bytes.NewReader(archive), int64(len(archive)), backup.ValidateOptions{})
}

// ValidateImportFrom is the streaming variant of ValidateImport.
func (s *Service) ValidateImportFrom(ctx context.Context, r io.ReaderAt, size int64, opts backup.ValidateOptions) (*backup.ValidationReport, error) {
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, backup.OpValidate)
	report, err := s.backup.ValidateImport(ctx, r, size, opts)
	span.End(err)
	s.finishOperation(ctx, backup.OpValidate, "", "", "", started, err)
	return report, err
}

// CommitImport applies an archive in the given mode.
func (s *Service) CommitImport(ctx context.Context, archive []byte, mode backup.Mode) (*backup.CommitReport, error) {
	return s.CommitImportFrom(ctx, bytes.NewReader(archive), int64(len(archive)), mode)
}

// CommitImportFrom is the streaming variant of CommitImport.
func (s *Service) CommitImportFrom(ctx context.Context, r io.ReaderAt, size int64, mode backup.Mode) (*backup.CommitReport, error) {
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, backup.OpCommit)
	report, err := s.backup.CommitImport(ctx, r, size, mode)
	span.End(err)
	s.finishOperation(ctx, backup.OpCommit, "", "", "", started, err)
	return report, err
}

// DeleteAll wipes every record and all managed media.
func (s *Service) DeleteAll(ctx context.Context) (*backup.WipeSummary, error) {
	started := s.clock.Now()
	ctx, span := s.startSpan(ctx, backup.OpWipe)
	summary, err := s.backup.DeleteAll(ctx)
	span.End(err)
	s.finishOperation(ctx, backup.OpWipe, "", "", "", started, err)
	return summary, err
}

// ErrNotFound reports a lookup miss.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
