package metrics

import (
	"strings"
	"testing"
	"time"

	"docsession/internal/blobstore"
	"docsession/internal/core"
)

func TestFormatStats(t *testing.T) {
	out := FormatStats(core.SessionStats{Managed: 1234, PendingInsert: 2, PendingDelete: 1, QueueDepth: 3})
	if !strings.Contains(out, "1,234") {
		t.Fatalf("expected thousands separator in %q", out)
	}
}

func TestFormatBlobInfo(t *testing.T) {
	info := blobstore.Info{Key: "covers/a.jpg", Size: 2048, LastModified: time.Now().Add(-time.Hour)}
	out := FormatBlobInfo(info)
	if !strings.Contains(out, "covers/a.jpg") {
		t.Fatalf("expected key in %q", out)
	}
}
