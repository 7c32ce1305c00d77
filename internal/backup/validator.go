package backup

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// DefaultMaxErrorSamples bounds how many per-record errors a validation
// report carries per entity type. The full count is always reported.
const DefaultMaxErrorSamples = 10

// ValidateOptions tunes a dry run. The zero value previews a merge import
// and uses the engine's configured sample bound.
type ValidateOptions struct {
	// Mode selects which import the dry run previews. Merge resolves
	// name-keyed references against existing records; replace resolves
	// within the archive alone, matching the post-wipe store.
	Mode Mode
	// MaxErrorSamples overrides the per-type sample bound when positive.
	MaxErrorSamples int
}

// ValidationReport is the outcome of a dry-run import. It never implies any
// mutation: the archive was checked record by record against the same rules
// a commit would apply.
type ValidationReport struct {
	Valid        bool                  `json:"valid"`
	Mode         Mode                  `json:"mode"`
	Stats        ValidationStats       `json:"stats"`
	TotalErrors  int                   `json:"total_errors"`
	ErrorsByType map[string]TypeErrors `json:"errors_by_type"`
	Warnings     []string              `json:"warnings,omitempty"`
}

// ValidationStats counts the records checked.
type ValidationStats struct {
	TotalRecords int `json:"total_records"`
	ValidRecords int `json:"valid_records"`
}

// TypeErrors aggregates one entity type's record errors. Samples is capped;
// HasMore signals that Count exceeds the retained samples.
type TypeErrors struct {
	Count   int           `json:"count"`
	Samples []ErrorSample `json:"samples"`
	HasMore bool          `json:"has_more"`
}

// ErrorSample pairs a failing record's archive ID with its first error.
type ErrorSample struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// identities tracks how archive rows resolve to records while an import is
// checked or replayed. Accepted archive rows register under their natural
// key; reference cells resolve against those first, then against committed
// records for name-keyed types. ID-keyed references never match committed
// state because imports mint fresh IDs.
type identities struct {
	view     domain.TransactionView
	accepted map[domain.EntityType]map[string]string
	existing map[domain.EntityType]map[string]string
}

func newIdentities(view domain.TransactionView) *identities {
	return &identities{
		view:     view,
		accepted: make(map[domain.EntityType]map[string]string),
		existing: make(map[domain.EntityType]map[string]string),
	}
}

// register records an accepted archive row under its natural key. id is the
// internal ID the row resolved to, or empty during a dry run.
func (ix *identities) register(t domain.EntityType, key, id string) {
	m := ix.accepted[t]
	if m == nil {
		m = make(map[string]string)
		ix.accepted[t] = m
	}
	m[key] = id
}

// resolve maps an archive natural key to an internal ID. The boolean reports
// whether the key is known at all; the ID may be empty during a dry run.
// Committed records are indexed lazily from the view, unless the caller
// seeded the index up front.
func (ix *identities) resolve(t domain.EntityType, key string) (string, bool) {
	if id, ok := ix.accepted[t][key]; ok {
		return id, true
	}
	desc, ok := catalog.Get(t)
	if !ok || desc.NaturalKey == "id" {
		return "", false
	}
	byName, ok := ix.existing[t]
	if !ok {
		if ix.view == nil {
			return "", false
		}
		byName = make(map[string]string)
		for _, rec := range ix.view.List(t) {
			byName[desc.KeyValue(rec)] = rec.RecordID()
		}
		ix.existing[t] = byName
	}
	id, ok := byName[key]
	return id, ok
}

// rowCheck is the outcome of validating a single archive row.
type rowCheck struct {
	// Problem is the row's first error, empty when the row is importable.
	Problem string
	// Refs maps reference columns to resolved values for Decode; nil cells
	// are unset references.
	Refs map[string]*string
	// Media maps media columns to the archive keys the row claims.
	Media map[string]*string
	// Warnings are non-fatal degradations, currently only missing media.
	Warnings []string
}

// tableState carries the per-table duplicate bookkeeping across rows.
type tableState struct {
	ids  map[string]bool
	keys map[string]bool
}

func newTableState() *tableState {
	return &tableState{ids: make(map[string]bool), keys: make(map[string]bool)}
}

// checkRow validates one row: identity, scalar fields, references, media.
// Rows fail on their first problem so each error sample stays a single
// actionable message. Valid rows are not registered here; the caller
// registers them once it knows the internal ID (or lack of one).
func checkRow(desc catalog.Descriptor, row Row, ids *identities, state *tableState, a *Archive) rowCheck {
	out := rowCheck{
		Refs:  make(map[string]*string, len(desc.Refs)),
		Media: make(map[string]*string, len(desc.Media)),
	}
	id := row.Cells["id"]
	if id == "" {
		out.Problem = "missing id"
		return out
	}
	if state.ids[id] {
		out.Problem = fmt.Sprintf("duplicate id '%s'", id)
		return out
	}
	if desc.NaturalKey != "id" {
		key := row.Cells[desc.NaturalKey]
		if state.keys[key] {
			out.Problem = fmt.Sprintf("duplicate %s '%s'", desc.NaturalKey, key)
			return out
		}
	}
	for _, f := range desc.Fields {
		if msg := checkField(f, row.Cells[f.Column]); msg != "" {
			out.Problem = msg
			return out
		}
	}
	for _, ref := range desc.Refs {
		cell := row.Cells[ref.Column]
		if cell == "" {
			if ref.Required {
				out.Problem = fmt.Sprintf("missing required %s", ref.Target)
				return out
			}
			out.Refs[ref.Column] = nil
			continue
		}
		resolved, ok := ids.resolve(ref.Target, cell)
		if !ok {
			out.Problem = fmt.Sprintf("%s '%s' not found", ref.Target, cell)
			return out
		}
		if resolved == "" {
			resolved = cell
		}
		out.Refs[ref.Column] = &resolved
	}
	for _, m := range desc.Media {
		cell := row.Cells[m.Column]
		if cell == "" {
			out.Media[m.Column] = nil
			continue
		}
		if _, ok := a.MediaByKey(cell); !ok {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s %s: media file '%s' not in archive, field left empty", desc.Display, id, cell))
			out.Media[m.Column] = nil
			continue
		}
		key := cell
		out.Media[m.Column] = &key
	}
	if _, err := desc.Decode(row.Cells, out.Refs, out.Media); err != nil {
		out.Problem = err.Error()
		return out
	}
	return out
}

// accept marks a row's identity as used and registers it for reference
// resolution by later rows.
func (s *tableState) accept(desc catalog.Descriptor, row Row, ids *identities, internalID string) {
	s.ids[row.Cells["id"]] = true
	key := row.Key(desc)
	if desc.NaturalKey != "id" {
		s.keys[key] = true
	}
	ids.register(desc.Type, key, internalID)
}

func checkField(f catalog.Field, cell string) string {
	if cell == "" {
		if f.Required {
			return fmt.Sprintf("missing required field '%s'", f.Column)
		}
		return ""
	}
	switch f.Kind {
	case catalog.KindInt:
		if _, err := strconv.Atoi(cell); err != nil {
			return fmt.Sprintf("field '%s' must be an integer, got '%s'", f.Column, cell)
		}
	case catalog.KindFloat:
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return fmt.Sprintf("field '%s' must be a number, got '%s'", f.Column, cell)
		}
	case catalog.KindDate:
		if _, err := time.Parse("2006-01-02", cell); err != nil {
			return fmt.Sprintf("field '%s' must be a date in YYYY-MM-DD form, got '%s'", f.Column, cell)
		}
	case catalog.KindEnum:
		if !slices.Contains(f.Enum, cell) {
			return fmt.Sprintf("field '%s' must be one of %v, got '%s'", f.Column, f.Enum, cell)
		}
	case catalog.KindStringList:
		var items []string
		if err := json.Unmarshal([]byte(cell), &items); err != nil {
			return fmt.Sprintf("field '%s' must be a JSON list of strings", f.Column)
		}
	}
	return ""
}

// validateArchive dry-runs an import. Structural problems surface as
// errors; per-record problems land in the report. Merge previews resolve
// name-keyed references against view; replace previews ignore it because
// the commit they predict starts from an empty store.
func validateArchive(a *Archive, view domain.TransactionView, opts ValidateOptions) (*ValidationReport, error) {
	maxSamples := opts.MaxErrorSamples
	if maxSamples <= 0 {
		maxSamples = DefaultMaxErrorSamples
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if mode == ModeReplace {
		view = nil
	}
	order, err := DependencyOrder()
	if err != nil {
		return nil, err
	}
	report := &ValidationReport{Valid: true, Mode: mode, ErrorsByType: make(map[string]TypeErrors)}
	ids := newIdentities(view)
	referenced := make(map[string]bool)
	for _, t := range order {
		desc, _ := catalog.Get(t)
		rows, err := a.Rows(t)
		if err != nil {
			return nil, err
		}
		state := newTableState()
		for _, row := range rows {
			report.Stats.TotalRecords++
			check := checkRow(desc, row, ids, state, a)
			report.Warnings = append(report.Warnings, check.Warnings...)
			for _, ptr := range check.Media {
				if ptr != nil {
					referenced[*ptr] = true
				}
			}
			if check.Problem != "" {
				verr := &ValidationError{Type: desc.Display, Key: sampleID(row), Reason: check.Problem}
				report.addError(verr, maxSamples)
				continue
			}
			report.Stats.ValidRecords++
			state.accept(desc, row, ids, "")
		}
	}
	for _, mf := range a.Media() {
		if !referenced[mf.Key] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("media file '%s' not referenced by any record", mf.Key))
		}
	}
	return report, nil
}

func (r *ValidationReport) addError(verr *ValidationError, maxSamples int) {
	r.Valid = false
	r.TotalErrors++
	te := r.ErrorsByType[verr.Type]
	te.Count++
	if len(te.Samples) < maxSamples {
		te.Samples = append(te.Samples, ErrorSample{ID: verr.Key, Error: verr.Reason})
	} else {
		te.HasMore = true
	}
	r.ErrorsByType[verr.Type] = te
}

func sampleID(row Row) string {
	if id := row.Cells["id"]; id != "" {
		return id
	}
	return fmt.Sprintf("row %d", row.Num)
}
