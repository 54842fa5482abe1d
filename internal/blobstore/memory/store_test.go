package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"docsession/internal/blobstore"
)

func ref(key string) blobstore.BlobRef { return blobstore.BlobRef{Store: "mem", Key: key} }

func TestStoreMissingHeadGet(t *testing.T) {
	store := New("mem")
	ctx := context.Background()
	if _, err := store.Head(ctx, ref("missing")); err == nil {
		t.Fatalf("expected head error")
	}
	if _, _, err := store.Get(ctx, ref("missing")); err == nil {
		t.Fatalf("expected get error")
	}
}

func TestStoreRejectsMismatchedRef(t *testing.T) {
	store := New("mem")
	ctx := context.Background()
	_, err := store.Put(ctx, blobstore.BlobRef{Store: "other", Key: "k"}, bytes.NewReader([]byte("v")), blobstore.PutOptions{})
	var mismatch blobstore.StoreMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected StoreMismatchError, got %v", err)
	}
}

func TestStorePutGetListDelete(t *testing.T) {
	store := New("mem")
	ctx := context.Background()
	if ok, err := store.Delete(ctx, ref("missing")); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
	if _, err := store.Put(ctx, ref("k"), bytes.NewReader([]byte("v")), blobstore.PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, ref("k"), bytes.NewReader([]byte("v2")), blobstore.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	info, r, err := store.Get(ctx, ref("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer r.Close()
	if info.Size != 1 {
		t.Fatalf("expected size 1, got %d", info.Size)
	}
	if list, err := store.List(ctx, ""); err != nil || len(list) != 1 {
		t.Fatalf("list all: %v %d", err, len(list))
	}
	if list, err := store.List(ctx, "k"); err != nil || len(list) != 1 {
		t.Fatalf("list prefix: %v %d", err, len(list))
	}
	if list, err := store.List(ctx, "nope"); err != nil || len(list) != 0 {
		t.Fatalf("list non-matching prefix: %v %d", err, len(list))
	}
	if _, err := store.PresignURL(ctx, ref("k"), blobstore.SignedURLOptions{}); err == nil {
		t.Fatalf("expected unsupported presign")
	}
	if ok, err := store.Delete(ctx, ref("k")); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, ref("k")); err == nil {
		t.Fatalf("expected missing after delete")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStorePutReadErrorAndDriver(t *testing.T) {
	store := New("mem")
	if store.Driver() != blobstore.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), ref("bad"), failingReader{}, blobstore.PutOptions{}); err == nil {
		t.Fatalf("expected read error to propagate")
	}
}
