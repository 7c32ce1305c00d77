package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"printvault/internal/blob"
	"printvault/internal/catalog"
	"printvault/internal/infra/persistence/memory"
	"printvault/pkg/domain"
)

var archiveStamp = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func floatPtr(v float64) *float64 { return &v }

func openBytes(data []byte, limits Limits) (*Archive, error) {
	return OpenArchive(bytes.NewReader(data), int64(len(data)), limits)
}

// archiveBuilder assembles complete archives for tests. Every build carries a
// table member for all entity types plus a matching manifest, so structural
// checks pass and a test only specifies the rows and media it cares about.
type archiveBuilder struct {
	rows       map[domain.EntityType][]map[string]string
	media      map[string][]byte
	mediaOrder []string
	adjust     func(*Manifest)
}

func newArchive() *archiveBuilder {
	return &archiveBuilder{
		rows:  make(map[domain.EntityType][]map[string]string),
		media: make(map[string][]byte),
	}
}

// row appends one data row. Missing columns become empty cells.
func (b *archiveBuilder) row(t domain.EntityType, cells map[string]string) *archiveBuilder {
	b.rows[t] = append(b.rows[t], cells)
	return b
}

func (b *archiveBuilder) mediaFile(key string, payload []byte) *archiveBuilder {
	if _, ok := b.media[key]; !ok {
		b.mediaOrder = append(b.mediaOrder, key)
	}
	b.media[key] = payload
	return b
}

// manifest registers a mutation applied before the manifest is written, for
// tests that need a deliberately inconsistent archive.
func (b *archiveBuilder) manifest(fn func(*Manifest)) *archiveBuilder {
	b.adjust = fn
	return b
}

func (b *archiveBuilder) bytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	m := Manifest{FormatVersion: FormatVersion, Application: ApplicationName, CreatedAt: archiveStamp}
	for _, desc := range catalog.Descriptors() {
		columns := desc.Columns()
		w, err := zw.Create(TablesPrefix + desc.Table)
		if err != nil {
			t.Fatalf("create %s: %v", desc.Table, err)
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(columns); err != nil {
			t.Fatalf("write %s header: %v", desc.Table, err)
		}
		for _, cells := range b.rows[desc.Type] {
			row := make([]string, len(columns))
			for i, col := range columns {
				row[i] = cells[col]
			}
			if err := cw.Write(row); err != nil {
				t.Fatalf("write %s row: %v", desc.Table, err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			t.Fatalf("flush %s: %v", desc.Table, err)
		}
		m.Entities = append(m.Entities, ManifestEntity{
			Type:       string(desc.Type),
			Table:      TablesPrefix + desc.Table,
			Columns:    columns,
			NaturalKey: desc.NaturalKey,
			Rows:       len(b.rows[desc.Type]),
		})
	}
	for _, key := range b.mediaOrder {
		w, err := zw.Create(MediaPrefix + key)
		if err != nil {
			t.Fatalf("create media %s: %v", key, err)
		}
		if _, err := w.Write(b.media[key]); err != nil {
			t.Fatalf("write media %s: %v", key, err)
		}
	}
	m.MediaFiles = len(b.media)
	if b.adjust != nil {
		b.adjust(&m)
	}
	w, err := zw.Create(ManifestName)
	if err != nil {
		t.Fatalf("create manifest: %v", err)
	}
	if err := json.NewEncoder(w).Encode(m); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

func (b *archiveBuilder) open(t *testing.T) *Archive {
	t.Helper()
	data := b.bytes(t)
	a, err := openBytes(data, Limits{})
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return a
}

// workshopIDs are the record IDs minted by seedWorkshop.
type workshopIDs struct {
	brandID    string
	locationID string
	materialID string
	printerID  string
	modID      string
	projectID  string
	linkID     string
	itemID     string
	trackerID  string
}

const workshopRecords = 9

// seedWorkshop populates a store with a small connected fixture: a brand, a
// location, a spool, a printer with one mod, a project running on that
// printer, an inventory item, and a tracker.
func seedWorkshop(t *testing.T, store *memory.Store) workshopIDs {
	t.Helper()
	var ids workshopIDs
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		brand, err := tx.Create(&domain.Brand{Name: "Prusa"})
		if err != nil {
			return err
		}
		ids.brandID = brand.RecordID()
		location, err := tx.Create(&domain.Location{Name: "Shelf A"})
		if err != nil {
			return err
		}
		ids.locationID = location.RecordID()
		material, err := tx.Create(&domain.Material{
			Name:     "Galaxy Black PLA",
			Kind:     domain.MaterialSpool,
			BrandID:  &ids.brandID,
			Diameter: floatPtr(1.75),
			Colors:   []string{"black"},
		})
		if err != nil {
			return err
		}
		ids.materialID = material.RecordID()
		printer, err := tx.Create(&domain.Printer{
			Title:             "MK4",
			ManufacturerID:    &ids.brandID,
			PrimaryFilament:   "PLA",
			PrimaryMaterialID: &ids.materialID,
		})
		if err != nil {
			return err
		}
		ids.printerID = printer.RecordID()
		mod, err := tx.Create(&domain.Mod{Name: "Silent fan duct", Status: domain.ModInProgress, PrinterID: ids.printerID})
		if err != nil {
			return err
		}
		ids.modID = mod.RecordID()
		project, err := tx.Create(&domain.Project{Name: "Benchy fleet", Status: domain.ProjectInProgress})
		if err != nil {
			return err
		}
		ids.projectID = project.RecordID()
		link, err := tx.Create(&domain.ProjectPrinter{ProjectID: ids.projectID, PrinterID: ids.printerID})
		if err != nil {
			return err
		}
		ids.linkID = link.RecordID()
		item, err := tx.Create(&domain.InventoryItem{
			Title:      "Hardened nozzle 0.4",
			Quantity:   3,
			Cost:       24.9,
			BrandID:    &ids.brandID,
			LocationID: &ids.locationID,
		})
		if err != nil {
			return err
		}
		ids.itemID = item.RecordID()
		tracker, err := tx.Create(&domain.Tracker{Name: "Release prints", ProjectID: &ids.projectID, Storage: domain.TrackerStorageLink})
		if err != nil {
			return err
		}
		ids.trackerID = tracker.RecordID()
		return nil
	}); err != nil {
		t.Fatalf("seed workshop: %v", err)
	}
	return ids
}

// attachPhoto points an inventory item at a media key. When blobs is non-nil
// the payload is stored there as well, so exports can copy it.
func attachPhoto(t *testing.T, store *memory.Store, blobs blob.Store, itemID string, payload []byte) string {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("%s/%s/photo.jpg", domain.EntityInventoryItem, itemID)
	if blobs != nil {
		if _, err := blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "image/jpeg"}); err != nil {
			t.Fatalf("put photo: %v", err)
		}
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.Update(domain.EntityInventoryItem, itemID, func(rec domain.Record) error {
			rec.(*domain.InventoryItem).PhotoPath = &key
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("attach photo: %v", err)
	}
	return key
}

// exportBytes writes an archive of the store's committed state.
func exportBytes(t *testing.T, store *memory.Store, blobs blob.Store) ([]byte, ExportSummary) {
	t.Helper()
	var buf bytes.Buffer
	var summary ExportSummary
	err := store.View(context.Background(), func(view domain.TransactionView) error {
		var inner error
		summary, inner = writeArchive(context.Background(), view, blobs, &buf, archiveStamp)
		return inner
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	return buf.Bytes(), summary
}

// validateView dry-runs an archive against the store's committed state.
func validateView(t *testing.T, a *Archive, store *memory.Store, opts ValidateOptions) *ValidationReport {
	t.Helper()
	var report *ValidationReport
	err := store.View(context.Background(), func(view domain.TransactionView) error {
		var inner error
		report, inner = validateArchive(a, view, opts)
		return inner
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return report
}

// commitBytes replays an archive into the store.
func commitBytes(t *testing.T, store *memory.Store, blobs blob.Store, data []byte, mode Mode) *CommitReport {
	t.Helper()
	a, err := openBytes(data, Limits{})
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	report, err := commitArchive(context.Background(), a, store, blobs, mode, testLogger())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return report
}
