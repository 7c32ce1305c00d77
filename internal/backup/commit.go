package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"printvault/internal/blob"
	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// Mode selects how an import treats existing data.
type Mode string

const (
	// ModeMerge inserts archive records alongside existing data. Rows of
	// name-keyed lookup types resolve to existing records with the same
	// name instead of duplicating them; everything else is inserted with a
	// fresh ID.
	ModeMerge Mode = "merge"
	// ModeReplace deletes every record and media file first, then imports
	// into the empty store.
	ModeReplace Mode = "replace"
)

// ParseMode parses a user-supplied mode string; empty means merge.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", string(ModeMerge):
		return ModeMerge, nil
	case string(ModeReplace):
		return ModeReplace, nil
	}
	return "", fmt.Errorf("unknown import mode %q", s)
}

// maxCommitErrors caps the error strings carried by a commit report. The
// count is always exact; only the listing is truncated.
const maxCommitErrors = 100

// CommitReport is the outcome of an import. Success means every record
// landed; a failed record never aborts the rest, so ErrorsCount and
// ImportedRecords partition the archive's rows together with
// ResolvedRecords.
type CommitReport struct {
	Success         bool     `json:"success"`
	Mode            Mode     `json:"mode"`
	ErrorsCount     int      `json:"errors_count"`
	Errors          []string `json:"errors,omitempty"`
	Message         string   `json:"message"`
	ImportedRecords int      `json:"imported_records"`
	ResolvedRecords int      `json:"resolved_records,omitempty"`
	MediaFiles      int      `json:"media_files"`
	Warnings        []string `json:"warnings,omitempty"`
}

func (r *CommitReport) addError(display, id, problem string) {
	r.ErrorsCount++
	if len(r.Errors) < maxCommitErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("%s %s: %s", display, id, problem))
	}
}

func (r *CommitReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// commitArchive replays a structurally valid archive into the store. Each
// record commits in its own transaction: a bad record is reported and
// skipped while the rest import. Records already committed stay committed
// when a later infrastructure failure aborts the run.
func commitArchive(ctx context.Context, a *Archive, store domain.PersistentStore, blobs blob.Store, mode Mode, logger *slog.Logger) (*CommitReport, error) {
	order, err := DependencyOrder()
	if err != nil {
		return nil, err
	}
	report := &CommitReport{Mode: mode}
	ids := newIdentities(nil)

	switch mode {
	case ModeReplace:
		wiped, err := wipeStore(ctx, store)
		if err != nil {
			return nil, fmt.Errorf("wipe before replace: %w", err)
		}
		deleted, err := sweepBlobs(ctx, blobs)
		if err != nil {
			report.warnf("media sweep incomplete: %v", err)
		}
		logger.InfoContext(ctx, "replace import wiped store", "records", wiped, "media", deleted)
	case ModeMerge:
		if err := seedExistingNames(ctx, store, ids); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	for _, t := range order {
		desc, _ := catalog.Get(t)
		rows, err := a.Rows(t)
		if err != nil {
			return report, err
		}
		state := newTableState()
		for _, row := range rows {
			if err := importRow(ctx, a, store, blobs, desc, row, ids, state, report); err != nil {
				report.Message = fmt.Sprintf("import aborted at %s %s: %v", desc.Display, sampleID(row), err)
				return report, err
			}
		}
	}

	report.Success = report.ErrorsCount == 0
	report.Message = commitMessage(report)
	return report, nil
}

// importRow imports a single archive row. Row-level problems are recorded
// on the report and return nil; a non-nil error means the store itself
// failed and the run cannot continue.
func importRow(ctx context.Context, a *Archive, store domain.PersistentStore, blobs blob.Store, desc catalog.Descriptor, row Row, ids *identities, state *tableState, report *CommitReport) error {
	check := checkRow(desc, row, ids, state, a)
	report.Warnings = append(report.Warnings, check.Warnings...)
	if check.Problem != "" {
		report.addError(desc.Display, sampleID(row), check.Problem)
		return nil
	}

	if desc.NaturalKey != "id" {
		if existingID, ok := ids.resolve(desc.Type, row.Key(desc)); ok && existingID != "" {
			state.accept(desc, row, ids, existingID)
			report.ResolvedRecords++
			return nil
		}
	}

	rec, err := desc.Decode(row.Cells, check.Refs, emptyMedia(desc))
	if err != nil {
		report.addError(desc.Display, sampleID(row), err.Error())
		return nil
	}

	var createdID string
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.Create(rec)
		if err != nil {
			return err
		}
		createdID = created.RecordID()
		return nil
	})
	if err != nil {
		var rve domain.RuleViolationError
		if errors.As(err, &rve) {
			report.addError(desc.Display, sampleID(row), violationMessage(rve))
			return nil
		}
		return err
	}
	state.accept(desc, row, ids, createdID)
	report.ImportedRecords++

	stored := make(map[string]string, len(desc.Media))
	for _, m := range desc.Media {
		cell := row.Cells[m.Column]
		if cell == "" {
			continue
		}
		mf, ok := a.MediaByKey(cell)
		if !ok {
			continue
		}
		key, err := storeMediaFile(ctx, blobs, mf, desc.Type, createdID)
		if err != nil {
			report.warnf("%s %s: media '%s': %v, field left empty", desc.Display, sampleID(row), cell, err)
			continue
		}
		stored[m.Column] = key
	}
	if len(stored) == 0 {
		return nil
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.Update(desc.Type, createdID, func(rec domain.Record) error {
			for column, key := range stored {
				if err := desc.SetMedia(rec, column, &key); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	if err != nil {
		report.warnf("%s %s: media imported but not linked: %v", desc.Display, sampleID(row), err)
		return nil
	}
	report.MediaFiles += len(stored)
	return nil
}

// seedExistingNames indexes committed name-keyed records so merge imports
// resolve against them without holding a view open across transactions.
func seedExistingNames(ctx context.Context, store domain.PersistentStore, ids *identities) error {
	return store.View(ctx, func(view domain.TransactionView) error {
		for _, desc := range catalog.Descriptors() {
			if desc.NaturalKey == "id" {
				continue
			}
			byName := make(map[string]string)
			for _, rec := range view.List(desc.Type) {
				byName[desc.KeyValue(rec)] = rec.RecordID()
			}
			ids.existing[desc.Type] = byName
		}
		return nil
	})
}

// wipeStore deletes every record in one transaction, children before
// parents. The transaction either empties the store or leaves it untouched.
func wipeStore(ctx context.Context, store domain.PersistentStore) (int, error) {
	rorder, err := ReverseDependencyOrder()
	if err != nil {
		return 0, err
	}
	wiped := 0
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, t := range rorder {
			for _, rec := range tx.Snapshot().List(t) {
				if err := tx.Delete(t, rec.RecordID()); err != nil {
					return err
				}
				wiped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return wiped, nil
}

func emptyMedia(desc catalog.Descriptor) map[string]*string {
	m := make(map[string]*string, len(desc.Media))
	for _, mf := range desc.Media {
		m[mf.Column] = nil
	}
	return m
}

func violationMessage(rve domain.RuleViolationError) string {
	for _, v := range rve.Result.Violations {
		if v.Severity == domain.SeverityBlock {
			return v.Message
		}
	}
	return rve.Error()
}

func commitMessage(r *CommitReport) string {
	var msg string
	switch {
	case r.Mode == ModeReplace && r.Success:
		msg = fmt.Sprintf("replaced all data with %d records from archive", r.ImportedRecords)
	case r.Success:
		msg = fmt.Sprintf("imported %d records", r.ImportedRecords)
	default:
		msg = fmt.Sprintf("imported %d records, %d failed", r.ImportedRecords, r.ErrorsCount)
	}
	if r.ResolvedRecords > 0 {
		msg += fmt.Sprintf(", matched %d existing", r.ResolvedRecords)
	}
	if r.MediaFiles > 0 {
		msg += fmt.Sprintf(", %d media files", r.MediaFiles)
	}
	if r.ErrorsCount > len(r.Errors) {
		msg += fmt.Sprintf(" (showing first %d errors)", len(r.Errors))
	}
	return msg
}
