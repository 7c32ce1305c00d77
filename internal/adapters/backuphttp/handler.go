// Package backuphttp exposes the bulk export and import operations over
// HTTP. Archives upload as multipart form files or raw bodies and are
// spooled to temp storage before parsing, so the zip reader can seek them.
package backuphttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"printvault/internal/backup"
	"printvault/internal/catalog"
)

// Service is the operation surface the handler serves.
type Service interface {
	Export(ctx context.Context, w io.Writer) (backup.ExportSummary, error)
	ValidateImportFrom(ctx context.Context, r io.ReaderAt, size int64, opts backup.ValidateOptions) (*backup.ValidationReport, error)
	CommitImportFrom(ctx context.Context, r io.ReaderAt, size int64, mode backup.Mode) (*backup.CommitReport, error)
	DeleteAll(ctx context.Context) (*backup.WipeSummary, error)
}

// DefaultMaxUploadBytes caps the accepted archive upload size.
const DefaultMaxUploadBytes = int64(2) << 30

// Handler provides HTTP access to export, validate, import, and wipe.
type Handler struct {
	Service Service
	// MaxUploadBytes caps uploads; zero means DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// NewHandler constructs a backup HTTP handler.
func NewHandler(s Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "backup service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "/api/v1/backup/export":
		h.handleExport(w, r)
	case r.Method == http.MethodPost && path == "/api/v1/backup/validate":
		h.handleValidate(w, r)
	case r.Method == http.MethodPost && path == "/api/v1/backup/import":
		h.handleImport(w, r)
	case r.Method == http.MethodPost && path == "/api/v1/backup/wipe":
		h.handleWipe(w, r)
	case r.Method == http.MethodGet && path == "/api/v1/backup/catalog":
		h.handleCatalog(w, r)
	default:
		switch path {
		case "/api/v1/backup/export", "/api/v1/backup/validate", "/api/v1/backup/import", "/api/v1/backup/wipe", "/api/v1/backup/catalog":
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		default:
			http.NotFound(w, r)
		}
	}
}

// exportWriter defers the download headers until the first archive byte so
// a pre-write failure can still produce a JSON error response.
type exportWriter struct {
	w        http.ResponseWriter
	filename string
	n        int64
}

func (e *exportWriter) Write(p []byte) (int, error) {
	if e.n == 0 {
		e.w.Header().Set("Content-Type", "application/zip")
		e.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.filename))
	}
	n, err := e.w.Write(p)
	e.n += int64(n)
	return n, err
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ew := &exportWriter{
		w:        w,
		filename: fmt.Sprintf("printvault-export-%s.zip", time.Now().UTC().Format("20060102T150405Z")),
	}
	if _, err := h.Service.Export(r.Context(), ew); err != nil {
		if ew.n == 0 {
			writeError(w, statusFor(err), err.Error())
		}
		return
	}
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	mode, err := backup.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	samples := 0
	if raw := r.URL.Query().Get("samples"); raw != "" {
		samples, err = strconv.Atoi(raw)
		if err != nil || samples < 1 {
			writeError(w, http.StatusBadRequest, "samples must be a positive integer")
			return
		}
	}
	archive, size, cleanup, err := h.spoolArchive(w, r)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	defer cleanup()

	report, err := h.Service.ValidateImportFrom(r.Context(), archive, size, backup.ValidateOptions{Mode: mode, MaxErrorSamples: samples})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	mode, err := backup.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	archive, size, cleanup, err := h.spoolArchive(w, r)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	defer cleanup()

	report, err := h.Service.CommitImportFrom(r.Context(), archive, size, mode)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleWipe(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.DeleteAll(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type catalogEntity struct {
	Type       string       `json:"type"`
	Display    string       `json:"display"`
	Table      string       `json:"table"`
	NaturalKey string       `json:"natural_key"`
	Columns    []string     `json:"columns"`
	References []catalogRef `json:"references,omitempty"`
	Media      []string     `json:"media,omitempty"`
}

type catalogRef struct {
	Column   string `json:"column"`
	Target   string `json:"target"`
	Required bool   `json:"required"`
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	order, err := backup.DependencyOrder()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	orderNames := make([]string, len(order))
	for i, t := range order {
		orderNames[i] = string(t)
	}
	descriptors := catalog.Descriptors()
	entities := make([]catalogEntity, 0, len(descriptors))
	for _, desc := range descriptors {
		entity := catalogEntity{
			Type:       string(desc.Type),
			Display:    desc.Display,
			Table:      desc.Table,
			NaturalKey: desc.NaturalKey,
			Columns:    desc.Columns(),
		}
		for _, ref := range desc.Refs {
			entity.References = append(entity.References, catalogRef{
				Column:   ref.Column,
				Target:   string(ref.Target),
				Required: ref.Required,
			})
		}
		for _, m := range desc.Media {
			entity.Media = append(entity.Media, m.Column)
		}
		entities = append(entities, entity)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities":         entities,
		"dependency_order": orderNames,
	})
}

// spoolArchive buffers the uploaded archive to a temp file. It accepts a
// multipart form with an "archive" file field or a raw request body.
func (h *Handler) spoolArchive(w http.ResponseWriter, r *http.Request) (io.ReaderAt, int64, func(), error) {
	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var src io.Reader = r.Body
	var closeSrc func()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("archive")
		if err != nil {
			return nil, 0, nil, fmt.Errorf("multipart upload needs an %q file field: %w", "archive", err)
		}
		src = file
		closeSrc = func() { _ = file.Close() }
	}

	tmp, err := os.CreateTemp("", "printvault-upload-*.zip")
	if err != nil {
		if closeSrc != nil {
			closeSrc()
		}
		return nil, 0, nil, fmt.Errorf("spool upload: %w", err)
	}
	cleanup := func() {
		if closeSrc != nil {
			closeSrc()
		}
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return nil, 0, nil, err
	}
	return tmp, size, cleanup, nil
}

func statusFor(err error) int {
	switch {
	case backup.IsConcurrency(err):
		return http.StatusConflict
	case backup.IsStructural(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func uploadStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
