package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"docsession/internal/blobstore"
)

func ref(key string) blobstore.BlobRef { return blobstore.BlobRef{Store: "s3", Key: key} }

func TestStorePutGetHeadListDelete(t *testing.T) {
	store := NewMockForTests("s3")
	ctx := context.Background()

	if store.Driver() != blobstore.DriverS3 {
		t.Fatalf("expected s3 driver, got %q", store.Driver())
	}

	if _, err := store.Put(ctx, ref("docs/report.json"), bytes.NewReader([]byte(`{"ok":true}`)), blobstore.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	info, err := store.Head(ctx, ref("docs/report.json"))
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Size != int64(len(`{"ok":true}`)) {
		t.Fatalf("unexpected size %d", info.Size)
	}

	gotInfo, r, err := store.Get(ctx, ref("docs/report.json"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if gotInfo.ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", gotInfo.ContentType)
	}

	list, err := store.List(ctx, "docs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "docs/report.json" {
		t.Fatalf("unexpected list %+v", list)
	}

	if _, err := store.Put(ctx, blobstore.BlobRef{Store: "other", Key: "docs/report.json"}, bytes.NewReader(nil), blobstore.PutOptions{}); err == nil {
		t.Fatalf("expected mismatched store rejection")
	}

	if ok, err := store.Delete(ctx, ref("docs/report.json")); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, ref("docs/report.json")); err == nil {
		t.Fatalf("expected head error after delete")
	}
}
