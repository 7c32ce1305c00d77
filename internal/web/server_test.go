package web_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"printvault/internal/blob"
	"printvault/internal/config"
	"printvault/internal/core"
	"printvault/internal/web"
)

func newTestServer(t *testing.T, cfg config.ServerConfig) (*core.Service, *web.Server) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithBlobStore(blob.NewMemory()),
		core.WithLogger(slog.New(slog.DiscardHandler)))
	return svc, web.NewServer(svc, cfg)
}

func TestServerHealthz(t *testing.T) {
	svc, server := newTestServer(t, config.ServerConfig{})

	resp := httptest.NewRecorder()
	server.Router().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if got := resp.Body.String(); got != "{\"status\":\"ok\",\"records\":0}\n" {
		t.Fatalf("unexpected body: %q", got)
	}

	if _, _, err := svc.CreateRecord(context.Background(), &core.Brand{Name: "Prusa"}); err != nil {
		t.Fatalf("create brand: %v", err)
	}
	resp = httptest.NewRecorder()
	server.Router().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := resp.Body.String(); got != "{\"status\":\"ok\",\"records\":1}\n" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestServerMountsBackupAPI(t *testing.T) {
	_, server := newTestServer(t, config.ServerConfig{})

	resp := httptest.NewRecorder()
	server.Router().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/backup/catalog", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("catalog status: %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "\"dependency_order\"") {
		t.Fatalf("catalog body: %q", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	server.Router().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/backup/export", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("export status: %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("export content type: %q", ct)
	}
}

func TestServerAppliesUploadCap(t *testing.T) {
	_, server := newTestServer(t, config.ServerConfig{MaxUploadBytes: 16})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/import", bytes.NewReader(make([]byte, 512)))
	resp := httptest.NewRecorder()
	server.Router().ServeHTTP(resp, req)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
}

func TestServerObservabilityEndpoints(t *testing.T) {
	_, server := newTestServer(t, config.ServerConfig{})

	resp := httptest.NewRecorder()
	server.Router().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	server.Router().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("debug vars status: %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "memstats") {
		t.Fatalf("debug vars body: %q", resp.Body.String())
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	_, server := newTestServer(t, config.ServerConfig{})
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
