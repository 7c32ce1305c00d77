package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"printvault/internal/blob/core"
)

func TestStore_PutGetHeadDelete(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	payload := []byte("spool photo")
	info, err := store.Put(ctx, "material/m1/spool.jpg", bytes.NewReader(payload), core.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "material/m1/spool.jpg" || info.Size != int64(len(payload)) || info.ContentType != "image/jpeg" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "material/m1/spool.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate put error, got %v", err)
	}
	h, err := store.Head(ctx, "material/m1/spool.jpg")
	if err != nil || h.Size != int64(len(payload)) {
		t.Fatalf("head: %v %+v", err, h)
	}
	_, rc, err := store.Get(ctx, "material/m1/spool.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(b, payload) {
		t.Fatalf("get mismatch: %q", b)
	}
	ok, err := store.Delete(ctx, "material/m1/spool.jpg")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "material/m1/spool.jpg")
	if err != nil || ok {
		t.Fatalf("expected delete false for missing key")
	}
}

func TestStore_MissingLookups(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Head(ctx, "ghost"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected head not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "ghost"); err == nil {
		t.Fatalf("expected get error")
	}
}

func TestStore_GetReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("original")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first, _ := io.ReadAll(rc)
	_ = rc.Close()
	for i := range first {
		first[i] = 'x'
	}
	_, rc, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	second, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(second) != "original" {
		t.Fatalf("stored bytes mutated: %q", second)
	}
}

func TestStore_ListPrefixSorted(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"printer/p2/bed.jpg", "printer/p1/frame.jpg", "brand/b1/logo.png"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("img")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "printer/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "printer/p1/frame.jpg" || list[1].Key != "printer/p2/bed.jpg" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v len=%d", err, len(all))
	}
}

func TestStore_PresignUnsupported(t *testing.T) {
	store := New()
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutReadError(t *testing.T) {
	store := New()
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := store.Head(context.Background(), "bad"); err == nil {
		t.Fatalf("failed put must not store an entry")
	}
}
