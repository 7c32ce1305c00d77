package fs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"printvault/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) { //nolint:cyclop
	ctx := context.Background()
	store := newTempStore(t)
	payload := []byte("jpeg-bytes")
	info, err := store.Put(ctx, "inventory_item/9f3c/photo.jpg", bytes.NewReader(payload), core.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "inventory_item/9f3c/photo.jpg" || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected info %+v", info)
	}
	sum := sha256.Sum256(payload)
	if info.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("etag mismatch: %s", info.ETag)
	}
	if info.ContentType != "image/jpeg" {
		t.Fatalf("content type: %s", info.ContentType)
	}
	if _, err := store.Put(ctx, "inventory_item/9f3c/photo.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate failure, got %v", err)
	}
	h, err := store.Head(ctx, "inventory_item/9f3c/photo.jpg")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.Size != int64(len(payload)) || h.ContentType != "image/jpeg" {
		t.Fatalf("unexpected head info %+v", h)
	}
	if h.URL != "http://local.blob/inventory_item/9f3c/photo.jpg" {
		t.Fatalf("unexpected url: %s", h.URL)
	}
	g, rc, err := store.Get(ctx, "inventory_item/9f3c/photo.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(b, payload) || g.Key != h.Key {
		t.Fatalf("unexpected get artifacts")
	}
	list, err := store.List(ctx, "inventory_item/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "inventory_item/9f3c/photo.jpg" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, "inventory_item/9f3c/photo.jpg")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "inventory_item/9f3c/photo.jpg")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
}

func TestStore_DeletePrunesEmptyDirectories(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "printer/p1/nozzle.jpg", bytes.NewReader([]byte("a")), core.PutOptions{}); err != nil {
		t.Fatalf("put1: %v", err)
	}
	if _, err := store.Put(ctx, "printer/p2/bed.jpg", bytes.NewReader([]byte("b")), core.PutOptions{}); err != nil {
		t.Fatalf("put2: %v", err)
	}
	if ok, err := store.Delete(ctx, "printer/p1/nozzle.jpg"); err != nil || !ok {
		t.Fatalf("delete p1: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "printer", "p1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected p1 dir pruned, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "printer")); err != nil {
		t.Fatalf("printer dir should survive while p2 remains: %v", err)
	}
	if ok, err := store.Delete(ctx, "printer/p2/bed.jpg"); err != nil || !ok {
		t.Fatalf("delete p2: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "printer")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected printer dir pruned, got %v", err)
	}
	if _, err := os.Stat(store.Root()); err != nil {
		t.Fatalf("root must never be pruned: %v", err)
	}
}

func TestStore_PathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "../escape.stl", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected traversal error")
	}
	if _, err := store.Put(ctx, "/abs.stl", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected absolute error")
	}
	if _, err := store.Head(ctx, "a/../../b"); err == nil {
		t.Fatalf("expected head traversal error")
	}
	if _, _, err := store.Get(ctx, ""); err == nil {
		t.Fatalf("expected empty key error")
	}
	if _, err := store.Delete(ctx, "../x"); err == nil {
		t.Fatalf("expected delete traversal error")
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStore_PutReaderErrorLeavesNoObject(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "model/bad.stl", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
	if _, err := store.Head(ctx, "model/bad.stl"); err == nil {
		t.Fatalf("failed put must not leave an object")
	}
	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty tree, got %+v", list)
	}
}

func TestStore_ListSkipsTempFilesAndSorts(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"material/m2/spool.png", "material/m1/spool.png", "brand/b1/logo.png"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("img")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	orphan := filepath.Join(store.Root(), "material", ".tmp-orphan")
	if err := os.WriteFile(orphan, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}
	list, err := store.List(ctx, "material/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "material/m1/spool.png" || list[1].Key != "material/m2/spool.png" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v len=%d", err, len(all))
	}
	if all[0].Key != "brand/b1/logo.png" {
		t.Fatalf("expected sorted keys, got %+v", all)
	}
}

func TestStore_PresignVariants(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if url, err := store.PresignURL(ctx, "project/p1/cover.png", core.SignedURLOptions{}); err != nil || url != "http://local.blob/project/p1/cover.png" {
		t.Fatalf("presign default: %v %s", err, url)
	}
	if url, err := store.PresignURL(ctx, "project/p1/cover.png", core.SignedURLOptions{Method: "get"}); err != nil || url == "" {
		t.Fatalf("presign lower: %v %s", err, url)
	}
	if _, err := store.PresignURL(ctx, "project/p1/cover.png", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported for PUT, got %v", err)
	}
}

func TestStore_ContentTypeFromExtension(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "tracker/t1/label.png", bytes.NewReader([]byte("png")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	h, err := store.Head(ctx, "tracker/t1/label.png")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ContentType != "image/png" {
		t.Fatalf("content type: %s", h.ContentType)
	}
	if !h.LastModified.Equal(h.LastModified.UTC()) {
		t.Fatalf("expected UTC timestamp")
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, bad := range []string{"", "  ", "../escape", "/abs", "a/../b"} {
		if _, err := sanitizeKey(bad); err == nil {
			t.Fatalf("expected error for key %q", bad)
		}
	}
	clean, err := sanitizeKey("vendor/v1/invoice.pdf")
	if err != nil || clean != "vendor/v1/invoice.pdf" {
		t.Fatalf("sanitize: %v %s", err, clean)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "afile")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := New(filePath); err == nil {
		t.Fatalf("expected error when root is a file")
	}
}

func TestStore_RootAndDriver(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != filepath.Clean(dir) {
		t.Fatalf("root mismatch: %s", store.Root())
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("expected filesystem driver")
	}
}

func TestStoreLocalURLStable(t *testing.T) {
	store := &Store{root: t.TempDir()}
	if url := store.localURL("part_type/pt1/diagram.svg"); url != "http://local.blob/part_type/pt1/diagram.svg" {
		t.Fatalf("unexpected url: %s", url)
	}
}
