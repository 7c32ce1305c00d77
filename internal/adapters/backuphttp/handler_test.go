package backuphttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"printvault/internal/adapters/backuphttp"
	"printvault/internal/backup"
	"printvault/internal/blob"
	"printvault/internal/core"
	domain "printvault/pkg/domain"
)

type catalogResponse struct {
	Entities []struct {
		Type       string   `json:"type"`
		Display    string   `json:"display"`
		Table      string   `json:"table"`
		NaturalKey string   `json:"natural_key"`
		Columns    []string `json:"columns"`
		References []struct {
			Column   string `json:"column"`
			Target   string `json:"target"`
			Required bool   `json:"required"`
		} `json:"references"`
		Media []string `json:"media"`
	} `json:"entities"`
	DependencyOrder []string `json:"dependency_order"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func setupHandler(t *testing.T) (*core.Service, *backuphttp.Handler) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithBlobStore(blob.NewMemory()),
		core.WithLogger(slog.New(slog.DiscardHandler)))
	return svc, backuphttp.NewHandler(svc)
}

const studioRecords = 3

// seedStudio creates a brand, a spool of that brand, and a printer running it.
func seedStudio(t *testing.T, svc *core.Service) {
	t.Helper()
	ctx := context.Background()
	brand, _, err := svc.CreateRecord(ctx, &core.Brand{Name: "Prusa"})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	brandID := brand.RecordID()
	material, _, err := svc.CreateRecord(ctx, &core.Material{
		Name:    "Galaxy Black PLA",
		Kind:    domain.MaterialSpool,
		BrandID: &brandID,
	})
	if err != nil {
		t.Fatalf("create material: %v", err)
	}
	materialID := material.RecordID()
	_, _, err = svc.CreateRecord(ctx, &core.Printer{
		Title:             "MK4",
		ManufacturerID:    &brandID,
		PrimaryFilament:   "PLA",
		PrimaryMaterialID: &materialID,
	})
	if err != nil {
		t.Fatalf("create printer: %v", err)
	}
}

// exportArchive downloads an archive through the handler.
func exportArchive(t *testing.T, handler *backuphttp.Handler) []byte {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/export", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("export status: %d, body %s", resp.Code, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// multipartArchive wraps archive bytes in a form upload under the field name
// the handler expects.
func multipartArchive(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("archive", "printvault.zip")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandlerCatalogDescribesEveryEntity(t *testing.T) {
	_, handler := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backup/catalog", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(body.Entities) != len(domain.EntityTypes()) {
		t.Fatalf("entities = %d, want %d", len(body.Entities), len(domain.EntityTypes()))
	}
	if len(body.DependencyOrder) != len(body.Entities) {
		t.Fatalf("dependency order lists %d types", len(body.DependencyOrder))
	}
	position := make(map[string]int, len(body.DependencyOrder))
	for i, name := range body.DependencyOrder {
		position[name] = i
	}
	if position["brand"] > position["printer"] {
		t.Fatalf("brand ordered after printer: %v", body.DependencyOrder)
	}

	byType := make(map[string]int)
	for i, e := range body.Entities {
		byType[e.Type] = i
	}
	brand := body.Entities[byType["brand"]]
	if brand.NaturalKey != "name" || brand.Table != "brands.csv" {
		t.Fatalf("unexpected brand descriptor: %+v", brand)
	}
	printer := body.Entities[byType["printer"]]
	if printer.NaturalKey != "id" {
		t.Fatalf("unexpected printer key: %q", printer.NaturalKey)
	}
	foundManufacturer := false
	for _, ref := range printer.References {
		if ref.Column == "manufacturer" {
			foundManufacturer = true
			if ref.Target != "brand" || ref.Required {
				t.Fatalf("unexpected manufacturer ref: %+v", ref)
			}
		}
	}
	if !foundManufacturer {
		t.Fatalf("printer missing manufacturer reference")
	}
	mod := body.Entities[byType["mod"]]
	for _, ref := range mod.References {
		if ref.Column == "printer" && !ref.Required {
			t.Fatalf("mod printer reference should be required")
		}
	}
	item := body.Entities[byType["inventory_item"]]
	if len(item.Media) != 1 || item.Media[0] != "photo" {
		t.Fatalf("unexpected inventory media: %v", item.Media)
	}
}

func TestHandlerExportStreamsArchive(t *testing.T) {
	svc, handler := setupHandler(t)
	seedStudio(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/export", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	disposition := resp.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, `attachment; filename="printvault-export-`) {
		t.Fatalf("content disposition = %q", disposition)
	}

	data := resp.Body.Bytes()
	a, err := backup.OpenArchive(bytes.NewReader(data), int64(len(data)), backup.Limits{})
	if err != nil {
		t.Fatalf("reopen exported archive: %v", err)
	}
	if a.TotalRows() != studioRecords {
		t.Fatalf("rows = %d, want %d", a.TotalRows(), studioRecords)
	}
	if a.Manifest().Application != backup.ApplicationName {
		t.Fatalf("application = %q", a.Manifest().Application)
	}
}

func TestHandlerValidateAcceptsMultipartUpload(t *testing.T) {
	source, sourceHandler := setupHandler(t)
	seedStudio(t, source)
	data := exportArchive(t, sourceHandler)

	_, handler := setupHandler(t)
	body, contentType := multipartArchive(t, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/validate", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", resp.Code, resp.Body.String())
	}

	var report backup.ValidationReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Valid || report.Mode != backup.ModeMerge {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Stats.TotalRecords != studioRecords || report.Stats.ValidRecords != studioRecords {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}
}

func TestHandlerValidateHonorsModeParam(t *testing.T) {
	source, sourceHandler := setupHandler(t)
	seedStudio(t, source)
	data := exportArchive(t, sourceHandler)

	_, handler := setupHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/validate?mode=replace", bytes.NewReader(data))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", resp.Code, resp.Body.String())
	}
	var report backup.ValidationReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Mode != backup.ModeReplace || !report.Valid {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestHandlerImportAppliesArchive(t *testing.T) {
	ctx := context.Background()
	source, sourceHandler := setupHandler(t)
	seedStudio(t, source)
	data := exportArchive(t, sourceHandler)

	dest, handler := setupHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/import", bytes.NewReader(data))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", resp.Code, resp.Body.String())
	}

	var report backup.CommitReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Success || report.ImportedRecords != studioRecords || report.ErrorsCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Message != "imported 3 records" {
		t.Fatalf("message = %q", report.Message)
	}

	counts := dest.Counts(ctx)
	if counts[core.EntityBrand] != 1 || counts[core.EntityMaterial] != 1 || counts[core.EntityPrinter] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	brand := dest.ListRecords(ctx, core.EntityBrand)[0]
	printer := dest.ListRecords(ctx, core.EntityPrinter)[0].(*core.Printer)
	if printer.ManufacturerID == nil || *printer.ManufacturerID != brand.RecordID() {
		t.Fatalf("printer manufacturer not rewired to imported brand")
	}
}

func TestHandlerImportReplaceClearsExistingData(t *testing.T) {
	ctx := context.Background()
	_, emptyHandler := setupHandler(t)
	data := exportArchive(t, emptyHandler)

	svc, handler := setupHandler(t)
	seedStudio(t, svc)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/import?mode=replace", bytes.NewReader(data))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", resp.Code, resp.Body.String())
	}

	var report backup.CommitReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Success || report.ErrorsCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Message != "replaced all data with 0 records from archive" {
		t.Fatalf("message = %q", report.Message)
	}
	for entity, n := range svc.Counts(ctx) {
		if n != 0 {
			t.Fatalf("replace left %d %s records", n, entity)
		}
	}
}

func TestHandlerWipeDeletesEverything(t *testing.T) {
	ctx := context.Background()
	svc, handler := setupHandler(t)
	seedStudio(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/wipe/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body %s", resp.Code, resp.Body.String())
	}
	var summary backup.WipeSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.RecordsDeleted != studioRecords || summary.MediaDeleted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for entity, n := range svc.Counts(ctx) {
		if n != 0 {
			t.Fatalf("wipe left %d %s records", n, entity)
		}
	}
}
