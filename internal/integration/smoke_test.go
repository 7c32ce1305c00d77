package integration

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"printvault/internal/backup"
	"printvault/internal/blob"
	"printvault/internal/core"
	"printvault/pkg/domain"
)

// TestServiceRoundTripAcrossStores drives one create, update, export and
// import cycle through every in-process persistence backend, with metrics
// and tracing attached the way serve wires them.
func TestServiceRoundTripAcrossStores(t *testing.T) {
	stores := map[string]func(t *testing.T) core.PersistentStore{
		"memory": func(*testing.T) core.PersistentStore {
			return core.NewMemoryStore(core.NewDefaultRulesEngine())
		},
		"sqlite": func(t *testing.T) core.PersistentStore {
			s, err := core.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"), core.NewDefaultRulesEngine())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			recorder := core.NewExpvarMetricsRecorder("")
			var spans bytes.Buffer
			tracer := core.NewJSONTracer(&spans)
			svc := core.NewService(open(t), core.WithMetricsRecorder(recorder), core.WithTracer(tracer))

			brand, res, err := svc.CreateRecord(ctx, &domain.Brand{Name: "Voron Design"})
			if err != nil {
				t.Fatalf("create brand: %v", err)
			}
			if res.HasBlocking() {
				t.Fatalf("brand create blocked: %+v", res.Violations)
			}
			brandID := brand.RecordID()
			material, res, err := svc.CreateRecord(ctx, &domain.Material{Name: "ABS Black", Kind: domain.MaterialSpool, BrandID: &brandID})
			if err != nil {
				t.Fatalf("create material: %v", err)
			}
			if res.HasBlocking() {
				t.Fatalf("material create blocked: %+v", res.Violations)
			}

			if _, _, err := svc.UpdateRecord(ctx, domain.EntityMaterial, material.RecordID(), func(rec core.Record) error {
				rec.(*domain.Material).Name = "ABS Jet Black"
				return nil
			}); err != nil {
				t.Fatalf("rename material: %v", err)
			}

			var archive bytes.Buffer
			summary, err := svc.Export(ctx, &archive)
			if err != nil {
				t.Fatalf("export: %v", err)
			}
			if summary.RecordsTotal != 2 {
				t.Fatalf("exported %d records, want 2", summary.RecordsTotal)
			}

			dest := core.NewService(core.NewMemoryStore(core.NewDefaultRulesEngine()))
			report, err := dest.ValidateImport(ctx, archive.Bytes())
			if err != nil {
				t.Fatalf("validate archive: %v", err)
			}
			if !report.Valid {
				t.Fatalf("archive reported invalid: %+v", report)
			}
			commit, err := dest.CommitImport(ctx, archive.Bytes(), backup.ModeMerge)
			if err != nil {
				t.Fatalf("commit archive: %v", err)
			}
			if !commit.Success || commit.ImportedRecords != 2 {
				t.Fatalf("commit report off: %+v", commit)
			}
			materials := dest.ListRecords(ctx, domain.EntityMaterial)
			if len(materials) != 1 || materials[0].(*domain.Material).Name != "ABS Jet Black" {
				t.Fatalf("renamed material lost in transfer: %+v", materials)
			}

			snap := recorder.Snapshot()
			if len(snap.DurationsMS) == 0 {
				t.Fatal("no operation durations recorded")
			}
			if snap.Results["create_brand"]["success"] == 0 || snap.Results["export"]["success"] == 0 {
				t.Fatalf("operation counters missing: %+v", snap.Results)
			}
			if spans.Len() == 0 {
				t.Fatal("tracer wrote no span lines")
			}
			var traced bool
			for _, entry := range tracer.Entries() {
				if entry.Operation == "create_brand" && entry.Status == "success" {
					traced = true
					break
				}
			}
			if !traced {
				t.Fatalf("no create_brand span recorded: %+v", tracer.Entries())
			}
		})
	}
}

// TestBlobBackendsRoundTrip puts, reads back and deletes one object through
// each media backend reachable without external services.
func TestBlobBackendsRoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) blob.Store{
		"memory": func(*testing.T) blob.Store { return blob.NewMemory() },
		"filesystem": func(t *testing.T) blob.Store {
			fsStore, err := blob.NewFilesystem(t.TempDir())
			if err != nil {
				t.Fatalf("open filesystem store: %v", err)
			}
			return fsStore
		},
		"mock-s3": func(*testing.T) blob.Store { return blob.NewMockS3ForTests() },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bs := open(t)
			key := "inventory_item/42/photo.jpg"
			payload := []byte("jpeg-bytes")

			info, err := bs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "image/jpeg"})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Key != key || info.Size <= 0 {
				t.Fatalf("put info off: %+v", info)
			}

			_, rc, err := bs.Get(ctx, key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			got, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatalf("read object: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("object payload %q, want %q", got, payload)
			}

			if ok, err := bs.Delete(ctx, key); err != nil || !ok {
				t.Fatalf("delete: ok=%v err=%v", ok, err)
			}
		})
	}
}
