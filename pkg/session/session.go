// Package session is the public entry point: it wires a mapping registry,
// a persister per entity, an optional metrics recorder, and an optional
// set of blob stores into one core.Session and exposes the unit-of-work
// API a caller actually depends on.
package session

import (
	"context"
	"fmt"
	"io"

	"docsession/internal/blobstore"
	"docsession/internal/core"
	"docsession/internal/mapping"
	"docsession/internal/metrics"
)

// Session is the façade embedding the session core: every save, remove,
// refresh, detach, clear, flush, find, fetch, getReference, contains,
// getID and merge call documented against the core engine is available
// here unchanged, plus the blob convenience methods below.
type Session struct {
	*core.Session
	blobs *blobstore.Registry
}

// New builds a Session over registry (which doubles as both the mapping
// and persister registry core.Session needs) and an optional metrics
// recorder and blob registry. Either of metrics or blobs may be nil; a
// nil blobs registry makes OpenBlob/PutBlob always fail.
func New(registry *mapping.Registry, metrics core.MetricsRecorder, blobs *blobstore.Registry) *Session {
	return &Session{
		Session: core.NewSession(registry, registry, metrics),
		blobs:   blobs,
	}
}

// OpenBlob resolves ref against the registered store it names and opens
// the underlying content for reading. The caller owns the returned
// io.ReadCloser and must close it.
func (s *Session) OpenBlob(ctx context.Context, ref blobstore.BlobRef) (blobstore.Info, io.ReadCloser, error) {
	store, ok := s.lookupBlobStore(ref.Store)
	if !ok {
		return blobstore.Info{}, nil, fmt.Errorf("session: unknown blob store %q", ref.Store)
	}
	return store.Get(ctx, ref)
}

// PutBlob writes r's content to storeName under key and returns the Ref a
// mapped entity can hold onto, alongside the backend's Info.
func (s *Session) PutBlob(ctx context.Context, storeName, key string, r io.Reader, opts blobstore.PutOptions) (blobstore.BlobRef, blobstore.Info, error) {
	store, ok := s.lookupBlobStore(storeName)
	if !ok {
		return blobstore.BlobRef{}, blobstore.Info{}, fmt.Errorf("session: unknown blob store %q", storeName)
	}
	ref := blobstore.BlobRef{Store: storeName, Key: key}
	info, err := store.Put(ctx, ref, r, opts)
	if err != nil {
		return blobstore.BlobRef{}, blobstore.Info{}, err
	}
	return ref, info, nil
}

// DeleteBlob removes the content ref points at.
func (s *Session) DeleteBlob(ctx context.Context, ref blobstore.BlobRef) (bool, error) {
	store, ok := s.lookupBlobStore(ref.Store)
	if !ok {
		return false, fmt.Errorf("session: unknown blob store %q", ref.Store)
	}
	return store.Delete(ctx, ref)
}

func (s *Session) lookupBlobStore(name string) (blobstore.Store, bool) {
	if s.blobs == nil {
		return nil, false
	}
	return s.blobs.Lookup(name)
}

// StatsReport renders a core.SessionStats snapshot as a short,
// human-readable line, suitable for a periodic log line rather than a
// metrics scrape (that's what the expvar/prometheus recorders are for).
func StatsReport(stats core.SessionStats) string {
	return metrics.FormatStats(stats)
}
