// Package memory implements an in-memory blob Store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"docsession/internal/blobstore"
)

type blobEntry struct {
	info blobstore.Info
	data []byte
}

// Store implements blobstore.Store backed by process memory. Intended for
// tests. It embeds blobstore.Named so every method rejects a BlobRef
// stamped with another store's name before touching its map.
type Store struct {
	blobstore.Named
	mu   sync.RWMutex
	objs map[string]blobEntry
}

// New returns an in-memory blob store registered under name.
func New(name string) *Store {
	return &Store{Named: blobstore.NewNamed(name), objs: make(map[string]blobEntry)}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() blobstore.Driver { return blobstore.DriverMemory }

// Put stores a new blob; errors if the key exists.
func (s *Store) Put(_ context.Context, ref blobstore.BlobRef, r io.Reader, opts blobstore.PutOptions) (blobstore.Info, error) {
	if err := s.CheckRef(ref); err != nil {
		return blobstore.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[ref.Key]; exists {
		return blobstore.Info{}, fmt.Errorf("blob %s already exists", ref.Key)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return blobstore.Info{}, err
	}
	now := time.Now().UTC()
	info := blobstore.Info{Key: ref.Key, Size: int64(len(b)), ContentType: opts.ContentType, Metadata: cloneMetadata(opts.Metadata), LastModified: now}
	s.objs[ref.Key] = blobEntry{info: info, data: b}
	return info, nil
}

// Get returns blob metadata and a read closer to its content.
func (s *Store) Get(_ context.Context, ref blobstore.BlobRef) (blobstore.Info, io.ReadCloser, error) {
	if err := s.CheckRef(ref); err != nil {
		return blobstore.Info{}, nil, err
	}
	s.mu.RLock()
	obj, ok := s.objs[ref.Key]
	s.mu.RUnlock()
	if !ok {
		return blobstore.Info{}, nil, fmt.Errorf("blob %s not found", ref.Key)
	}
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	infoCopy := obj.info
	infoCopy.Metadata = cloneMetadata(infoCopy.Metadata)
	return infoCopy, io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Head returns blob metadata only.
func (s *Store) Head(_ context.Context, ref blobstore.BlobRef) (blobstore.Info, error) {
	if err := s.CheckRef(ref); err != nil {
		return blobstore.Info{}, err
	}
	s.mu.RLock()
	obj, ok := s.objs[ref.Key]
	s.mu.RUnlock()
	if !ok {
		return blobstore.Info{}, fmt.Errorf("blob %s not found", ref.Key)
	}
	infoCopy := obj.info
	infoCopy.Metadata = cloneMetadata(infoCopy.Metadata)
	return infoCopy, nil
}

// Delete removes the blob returning true if it existed.
func (s *Store) Delete(_ context.Context, ref blobstore.BlobRef) (bool, error) {
	if err := s.CheckRef(ref); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[ref.Key]
	if ok {
		delete(s.objs, ref.Key)
	}
	return ok, nil
}

// List returns all blobs matching prefix.
func (s *Store) List(_ context.Context, prefix string) ([]blobstore.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]blobstore.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if prefix == "" || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			inf := v.info
			inf.Metadata = cloneMetadata(inf.Metadata)
			out = append(out, inf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns unsupported for memory driver.
func (s *Store) PresignURL(_ context.Context, ref blobstore.BlobRef, _ blobstore.SignedURLOptions) (string, error) {
	if err := s.CheckRef(ref); err != nil {
		return "", err
	}
	return "", blobstore.ErrUnsupported
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
