package backup

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"printvault/internal/blob"
	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// ExportSummary reports what an export wrote.
type ExportSummary struct {
	CreatedAt    time.Time      `json:"created_at"`
	RecordsTotal int            `json:"records_total"`
	Records      map[string]int `json:"records"`
	MediaFiles   int            `json:"media_files"`
	Warnings     []string       `json:"warnings,omitempty"`
}

type archiveWriter struct {
	view      domain.TransactionView
	blobs     blob.Store
	zw        *zip.Writer
	now       time.Time
	entities  []ManifestEntity
	mediaKeys []string
	mediaSeen map[string]bool
	warnings  []string
}

// writeArchive streams a full export of the view to w. Tables are written in
// dependency order so an importer can replay them front to back, media
// payloads follow, and the manifest goes last once all counts are known.
func writeArchive(ctx context.Context, view domain.TransactionView, blobs blob.Store, w io.Writer, now time.Time) (ExportSummary, error) {
	order, err := DependencyOrder()
	if err != nil {
		return ExportSummary{}, err
	}
	aw := &archiveWriter{
		view:      view,
		blobs:     blobs,
		zw:        zip.NewWriter(w),
		now:       now.UTC(),
		mediaSeen: make(map[string]bool),
	}
	summary := ExportSummary{CreatedAt: aw.now, Records: make(map[string]int, len(order))}
	for _, t := range order {
		desc, _ := catalog.Get(t)
		rows, err := aw.writeTable(desc)
		if err != nil {
			return ExportSummary{}, err
		}
		summary.Records[string(t)] = rows
		summary.RecordsTotal += rows
	}
	copied, err := aw.writeMedia(ctx)
	if err != nil {
		return ExportSummary{}, err
	}
	summary.MediaFiles = copied
	if err := aw.writeManifest(copied); err != nil {
		return ExportSummary{}, err
	}
	if err := aw.zw.Close(); err != nil {
		return ExportSummary{}, fmt.Errorf("finalize archive: %w", err)
	}
	summary.Warnings = aw.warnings
	return summary, nil
}

func (aw *archiveWriter) writeTable(desc catalog.Descriptor) (int, error) {
	name := TablesPrefix + desc.Table
	w, err := aw.zw.Create(name)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	cw := csv.NewWriter(w)
	columns := desc.Columns()
	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("write %s header: %w", name, err)
	}
	records := orderSelfReferencing(desc, aw.view.List(desc.Type))
	for _, rec := range records {
		cells := desc.Encode(rec)
		aw.rewriteRefs(desc, rec.RecordID(), cells)
		aw.collectMedia(desc, cells)
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = cells[col]
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write %s row: %w", name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush %s: %w", name, err)
	}
	aw.entities = append(aw.entities, ManifestEntity{
		Type:       string(desc.Type),
		Table:      name,
		Columns:    columns,
		NaturalKey: desc.NaturalKey,
		Rows:       len(records),
	})
	return len(records), nil
}

// rewriteRefs replaces internal reference IDs with the target's natural key
// so rows stay meaningful across installations. A reference to a record that
// no longer exists is exported as an empty cell with a warning rather than
// leaking an ID no importer could resolve.
func (aw *archiveWriter) rewriteRefs(desc catalog.Descriptor, id string, cells map[string]string) {
	for _, ref := range desc.Refs {
		raw := cells[ref.Column]
		if raw == "" {
			continue
		}
		target, ok := aw.view.Find(ref.Target, raw)
		if !ok {
			aw.warnf("%s %s: %s references missing %s %s, exported empty", desc.Display, id, ref.Column, ref.Target, raw)
			cells[ref.Column] = ""
			continue
		}
		targetDesc, _ := catalog.Get(ref.Target)
		cells[ref.Column] = targetDesc.KeyValue(target)
	}
}

func (aw *archiveWriter) collectMedia(desc catalog.Descriptor, cells map[string]string) {
	for _, m := range desc.Media {
		key := cells[m.Column]
		if key == "" || aw.mediaSeen[key] {
			continue
		}
		aw.mediaSeen[key] = true
		aw.mediaKeys = append(aw.mediaKeys, key)
	}
}

// writeMedia copies referenced blobs into the archive. A blob that cannot be
// fetched degrades to a warning; the row keeps its cell so the importer can
// report the same gap instead of silently losing the reference.
func (aw *archiveWriter) writeMedia(ctx context.Context) (int, error) {
	copied := 0
	for _, key := range aw.mediaKeys {
		if aw.blobs == nil {
			aw.warnf("media %s: no blob store configured, skipped", key)
			continue
		}
		_, rc, err := aw.blobs.Get(ctx, key)
		if err != nil {
			aw.warnf("media %s: %v, skipped", key, err)
			continue
		}
		w, err := aw.zw.Create(MediaPrefix + key)
		if err != nil {
			_ = rc.Close()
			return 0, fmt.Errorf("create media member %s: %w", key, err)
		}
		if _, err := io.Copy(w, rc); err != nil {
			_ = rc.Close()
			return 0, fmt.Errorf("copy media %s: %w", key, err)
		}
		if err := rc.Close(); err != nil {
			return 0, fmt.Errorf("close media %s: %w", key, err)
		}
		copied++
	}
	return copied, nil
}

func (aw *archiveWriter) writeManifest(mediaFiles int) error {
	m := Manifest{
		FormatVersion: FormatVersion,
		Application:   ApplicationName,
		CreatedAt:     aw.now,
		Entities:      aw.entities,
		MediaFiles:    mediaFiles,
	}
	w, err := aw.zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("create %s: %w", ManifestName, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("write %s: %w", ManifestName, err)
	}
	return nil
}

func (aw *archiveWriter) warnf(format string, args ...any) {
	aw.warnings = append(aw.warnings, fmt.Sprintf(format, args...))
}

// orderSelfReferencing sorts one table's rows so records come after the
// records they reference within the same type. Types without self references
// keep the store's ID ordering. Rows caught in a reference cycle, which the
// store's integrity rules should have prevented, fall back to ID order at
// the end rather than being dropped.
func orderSelfReferencing(desc catalog.Descriptor, records []domain.Record) []domain.Record {
	var selfCols []string
	for _, ref := range desc.Refs {
		if ref.Target == desc.Type {
			selfCols = append(selfCols, ref.Column)
		}
	}
	if len(selfCols) == 0 || len(records) < 2 {
		return records
	}

	present := make(map[string]domain.Record, len(records))
	for _, rec := range records {
		present[rec.RecordID()] = rec
	}
	indegree := make(map[string]int, len(records))
	children := make(map[string][]string)
	for _, rec := range records {
		id := rec.RecordID()
		cells := desc.Encode(rec)
		for _, col := range selfCols {
			parent := cells[col]
			if parent == "" || parent == id {
				continue
			}
			if _, ok := present[parent]; !ok {
				continue
			}
			indegree[id]++
			children[parent] = append(children[parent], id)
		}
	}

	var ready []string
	for _, rec := range records {
		if indegree[rec.RecordID()] == 0 {
			ready = append(ready, rec.RecordID())
		}
	}
	sort.Strings(ready)
	ordered := make([]domain.Record, 0, len(records))
	emitted := make(map[string]bool, len(records))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, present[id])
		emitted[id] = true
		var next []string
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				next = append(next, child)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			sort.Strings(ready)
		}
	}
	if len(ordered) < len(records) {
		for _, rec := range records {
			if !emitted[rec.RecordID()] {
				ordered = append(ordered, rec)
			}
		}
	}
	return ordered
}
