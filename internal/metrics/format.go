package metrics

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"docsession/internal/blobstore"
	"docsession/internal/core"
)

// FormatStats renders a session stats snapshot for a log line: counts
// rendered with thousands separators, the way a long-running process's
// periodic status line should read.
func FormatStats(stats core.SessionStats) string {
	return fmt.Sprintf(
		"managed=%s pending_insert=%s pending_delete=%s queue_depth=%s",
		humanize.Comma(int64(stats.Managed)),
		humanize.Comma(int64(stats.PendingInsert)),
		humanize.Comma(int64(stats.PendingDelete)),
		humanize.Comma(int64(stats.QueueDepth)),
	)
}

// FormatBlobInfo renders a blob's metadata for a log line: a human-readable
// size and a relative last-modified time instead of raw bytes/timestamps.
func FormatBlobInfo(info blobstore.Info) string {
	return fmt.Sprintf("%s (%s, modified %s)", info.Key, humanize.Bytes(uint64(info.Size)), humanize.Time(info.LastModified))
}
