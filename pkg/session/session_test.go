package session

import (
	"bytes"
	"context"
	"io"
	"testing"

	"docsession/internal/blobstore"
	blobmemory "docsession/internal/blobstore/memory"
	"docsession/internal/mapping"
	"docsession/internal/metrics"
	"docsession/internal/persist/memory"
)

type author struct {
	ID   string `session:"id"`
	Name string
}

type book struct {
	ID     string `session:"id"`
	Title  string
	Author *author           `session:"ref,cascade=save,cascade=refresh"`
	Cover  blobstore.BlobRef `session:"embedded"`
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	store := memory.NewStore()
	registry := mapping.NewRegistry()

	authorGen := mapping.NewSequentialGenerator("author")
	authorMapping, err := mapping.New("authors", &author{}, authorGen)
	if err != nil {
		t.Fatalf("author mapping: %v", err)
	}
	registry.Register(&author{}, authorMapping, memory.NewPersister(store, "authors", &author{}, authorGen))

	bookGen := mapping.NewSequentialGenerator("book")
	bookMapping, err := mapping.New("books", &book{}, bookGen)
	if err != nil {
		t.Fatalf("book mapping: %v", err)
	}
	registry.Register(&book{}, bookMapping, memory.NewPersister(store, "books", &book{}, bookGen))

	blobs := blobstore.NewRegistry()
	blobs.Register(blobmemory.New("covers"))

	return New(registry, metrics.NewExpvarRecorder(t.Name()), blobs)
}

func TestSessionSaveCascadesAndFlushes(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	b := &book{Title: "Idiomatic Go", Author: &author{Name: "Jane Doe"}}
	if err := sess.Save(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sess.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if b.ID == "" {
		t.Fatalf("expected book id to be stamped")
	}
	if b.Author.ID == "" {
		t.Fatalf("expected cascaded author id to be stamped")
	}

	stats := sess.Stats()
	if stats.Managed != 2 {
		t.Fatalf("expected 2 managed entities, got %d", stats.Managed)
	}
	if report := StatsReport(stats); report == "" {
		t.Fatalf("expected non-empty stats report")
	}
}

func TestSessionFindReturnsManagedInstance(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	b := &book{Title: "Concurrency in Go", Author: &author{Name: "Katherine Cox-Buday"}}
	if err := sess.Save(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sess.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	found, err := sess.Find(ctx, (*book)(nil), b.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != any(b) {
		t.Fatalf("expected find to return the same managed instance")
	}
}

func TestSessionRemoveThenFlushDeletes(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	b := &book{Title: "The Go Programming Language", Author: &author{Name: "Donovan & Kernighan"}}
	if err := sess.Save(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sess.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	id := b.ID

	if err := sess.Remove(ctx, b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := sess.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if sess.Contains(b) {
		t.Fatalf("expected book to no longer be managed after remove+flush")
	}

	if err := sess.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := sess.Find(ctx, (*book)(nil), id)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected find to return nil for a deleted id, got %v", got)
	}
}

func TestSessionBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	ref, info, err := sess.PutBlob(ctx, "covers", "idiomatic-go.jpg", bytes.NewReader([]byte("cover bytes")), blobstore.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put blob: %v", err)
	}
	if info.Size != int64(len("cover bytes")) {
		t.Fatalf("unexpected size: %d", info.Size)
	}

	b := &book{Title: "Idiomatic Go", Author: &author{Name: "Jane Doe"}, Cover: ref}
	if err := sess.Save(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sess.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	gotInfo, r, err := sess.OpenBlob(ctx, b.Cover)
	if err != nil {
		t.Fatalf("open blob: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "cover bytes" {
		t.Fatalf("unexpected blob content: %q", data)
	}
	if gotInfo.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type: %q", gotInfo.ContentType)
	}

	if _, err := sess.DeleteBlob(ctx, ref); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	if _, _, err := sess.OpenBlob(ctx, ref); err == nil {
		t.Fatalf("expected open blob to fail after delete")
	}
}

func TestSessionUnknownBlobStore(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	if _, _, err := sess.OpenBlob(ctx, blobstore.BlobRef{Store: "missing", Key: "x"}); err == nil {
		t.Fatalf("expected error for unknown blob store")
	}
}
