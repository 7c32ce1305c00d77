package core

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"printvault/internal/backup"
	"printvault/internal/blob"
)

type auditSpy struct {
	seen []AuditEntry
}

func (a *auditSpy) Record(_ context.Context, entry AuditEntry) {
	a.seen = append(a.seen, entry)
}

func (a *auditSpy) find(op string, status AuditStatus) (AuditEntry, bool) {
	for _, entry := range a.seen {
		if entry.Operation == op && entry.Status == status {
			return entry, true
		}
	}
	return AuditEntry{}, false
}

type metricsSpy struct {
	observed []struct {
		op   string
		ok   bool
		took time.Duration
	}
}

func (m *metricsSpy) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	m.observed = append(m.observed, struct {
		op   string
		ok   bool
		took time.Duration
	}{op, success, duration})
}

func (m *metricsSpy) count(op string, success bool) int {
	n := 0
	for _, o := range m.observed {
		if o.op == op && o.ok == success {
			n++
		}
	}
	return n
}

type doneSpan struct {
	op  string
	err error
}

type tracerSpy struct {
	started []string
	done    []doneSpan
}

func (tr *tracerSpy) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	tr.started = append(tr.started, op)
	return ctx, &spySpan{owner: tr, op: op}
}

func (tr *tracerSpy) finished(op string, wantErr bool) bool {
	for _, d := range tr.done {
		if d.op == op && (d.err != nil) == wantErr {
			return true
		}
	}
	return false
}

type spySpan struct {
	owner *tracerSpy
	op    string
}

func (s *spySpan) End(err error) {
	s.owner.done = append(s.owner.done, doneSpan{op: s.op, err: err})
}

func TestServiceObservabilityCoversRecordAndBackupOps(t *testing.T) {
	ctx := context.Background()
	audit := &auditSpy{}
	metrics := &metricsSpy{}
	tracer := &tracerSpy{}

	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithBlobStore(blob.NewMemory()),
		WithLogger(quietLogger()),
	)

	brand, _, err := svc.CreateRecord(ctx, &Brand{Name: "Bambu Lab"})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	created, ok := audit.find("create_brand", AuditStatusSuccess)
	if !ok || created.EntityID != brand.RecordID() || created.Action != ActionCreate {
		t.Fatalf("create_brand audit entry missing or wrong: %+v (found=%v)", created, ok)
	}

	if _, _, err := svc.UpdateRecord(ctx, EntityBrand, brand.RecordID(), func(rec Record) error {
		rec.(*Brand).Name = "Bambu"
		return nil
	}); err != nil {
		t.Fatalf("update brand: %v", err)
	}

	if _, err := svc.DeleteRecord(ctx, EntityBrand, "missing-brand"); err == nil {
		t.Fatal("expected delete error for missing id")
	}
	failed, ok := audit.find("delete_brand", AuditStatusError)
	if !ok || failed.Detail == "" {
		t.Fatalf("delete_brand error entry missing detail: %+v (found=%v)", failed, ok)
	}
	if metrics.count("delete_brand", false) == 0 {
		t.Fatal("failed delete_brand never observed")
	}
	if !tracer.finished("delete_brand", true) {
		t.Fatal("no errored span for delete_brand")
	}

	var archive bytes.Buffer
	if _, err := svc.Export(ctx, &archive); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := svc.ValidateImport(ctx, archive.Bytes()); err != nil {
		t.Fatalf("validate import: %v", err)
	}
	if _, err := svc.CommitImport(ctx, archive.Bytes(), backup.ModeMerge); err != nil {
		t.Fatalf("commit import: %v", err)
	}
	if _, err := svc.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	for _, op := range []string{
		"create_brand",
		"update_brand",
		backup.OpExport,
		backup.OpValidate,
		backup.OpCommit,
		backup.OpWipe,
	} {
		if metrics.count(op, true) == 0 {
			t.Fatalf("no success observation for %s", op)
		}
		if !tracer.finished(op, false) {
			t.Fatalf("no finished span for %s", op)
		}
		if _, ok := audit.find(op, AuditStatusSuccess); !ok {
			t.Fatalf("no audit success entry for %s", op)
		}
	}
}

func TestServiceAuditUsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	log := NewMemoryAuditLog()

	svc := NewInMemoryService(NewRulesEngine(),
		WithAuditRecorder(log),
		WithClock(ClockFunc(func() time.Time { return fixed })),
		WithLogger(quietLogger()),
	)

	if _, _, err := svc.CreateRecord(ctx, &Vendor{Name: "Filament Depot"}); err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Operation != "create_vendor" {
		t.Fatalf("unexpected operation %q", entry.Operation)
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Fatalf("expected frozen timestamp %s, got %s", fixed, entry.Timestamp)
	}
	if entry.Duration != 0 {
		t.Fatalf("frozen clock should yield zero duration, got %s", entry.Duration)
	}
}

func TestMemoryAuditLogReturnsCopies(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryAuditLog()
	log.Record(ctx, AuditEntry{Operation: "create_brand", Status: AuditStatusSuccess})
	log.Record(ctx, AuditEntry{Operation: "delete_brand", Status: AuditStatusError})

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	entries[0].Operation = "mutated"
	if log.Entries()[0].Operation != "create_brand" {
		t.Fatal("caller mutation leaked into the log")
	}
}

func TestSlogAuditRecorderEmitsStructuredEntries(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	rec := NewSlogAuditRecorder(slog.New(slog.NewJSONHandler(&buf, nil)))

	rec.Record(ctx, AuditEntry{
		Operation: "create_brand",
		Entity:    EntityBrand,
		Action:    ActionCreate,
		EntityID:  "b1",
		Status:    AuditStatusSuccess,
		Duration:  250 * time.Millisecond,
	})
	rec.Record(ctx, AuditEntry{
		Operation: "delete_brand",
		Status:    AuditStatusError,
		Detail:    "brand b1 not found",
	})

	dec := json.NewDecoder(&buf)
	var first map[string]any
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if first["msg"] != "audit" || first["operation"] != "create_brand" || first["status"] != "success" {
		t.Fatalf("unexpected first line: %v", first)
	}
	if first["duration_ms"] != float64(250) {
		t.Fatalf("unexpected duration_ms: %v", first["duration_ms"])
	}
	if first["entity"] != "brand" || first["entity_id"] != "b1" {
		t.Fatalf("expected entity attributes, got %v", first)
	}
	if _, ok := first["detail"]; ok {
		t.Fatalf("success entry should omit detail: %v", first)
	}

	var second map[string]any
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	if second["detail"] != "brand b1 not found" {
		t.Fatalf("expected detail on error entry, got %v", second)
	}
	if _, ok := second["entity"]; ok {
		t.Fatalf("entry without entity should omit entity attributes: %v", second)
	}
}

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatal("expected generated export name")
	}
	recorder.Observe(context.Background(), "commit_import", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "commit_import", false, 5*time.Millisecond)
	recorder.Observe(context.Background(), "", true, time.Millisecond)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS["commit_import"] <= 0 {
		t.Fatalf("expected positive duration total, snapshot=%+v", snapshot)
	}
	if snapshot.Results["commit_import"]["success"] != 1 || snapshot.Results["commit_import"]["error"] != 1 {
		t.Fatalf("unexpected result counters: %+v", snapshot.Results)
	}
	if _, ok := snapshot.Results[""]; ok {
		t.Fatal("blank operation should be ignored")
	}

	v := expvar.Get(recorder.Name())
	if v == nil {
		t.Fatal("expected expvar export to be registered")
	}
	if !strings.Contains(v.String(), "commit_import") {
		t.Fatalf("expected expvar output to mention operation: %s", v.String())
	}
}

func TestJSONTraceTracerExports(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "export")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "commit_import")
	span.End(context.DeadlineExceeded)

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two span entries, got %d", len(entries))
	}
	if entries[0].Operation != "export" || entries[0].Status != "success" {
		t.Fatalf("unexpected first span: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("expected errored second span: %+v", entries[1])
	}
	if !strings.Contains(buf.String(), "\"operation\":\"export\"") {
		t.Fatalf("expected JSON line output, got %q", buf.String())
	}
}

func TestPrometheusMetricsRecorderCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	rec.Observe(ctx, "create_brand", true, 12*time.Millisecond)
	rec.Observe(ctx, "create_brand", false, 5*time.Millisecond)
	rec.Observe(ctx, "export", true, 30*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var sawResults, sawDurations bool
	for _, mf := range mfs {
		switch mf.GetName() {
		case "printvault_service_operations_total":
			sawResults = true
			for _, m := range mf.GetMetric() {
				labels := map[string]string{}
				for _, lp := range m.GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
				want := 1.0
				if got := m.GetCounter().GetValue(); got != want {
					t.Fatalf("counter %v = %v, want %v", labels, got, want)
				}
				if labels["operation"] == "" {
					t.Fatal("blank operation should not be recorded")
				}
			}
			if len(mf.GetMetric()) != 3 {
				t.Fatalf("expected 3 labeled counters, got %d", len(mf.GetMetric()))
			}
		case "printvault_service_operation_duration_seconds":
			sawDurations = true
			var samples uint64
			for _, m := range mf.GetMetric() {
				samples += m.GetHistogram().GetSampleCount()
			}
			if samples != 3 {
				t.Fatalf("expected 3 histogram samples, got %d", samples)
			}
		}
	}
	if !sawResults || !sawDurations {
		t.Fatalf("missing collector families: results=%v durations=%v", sawResults, sawDurations)
	}
}

func TestPrometheusMetricsRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
