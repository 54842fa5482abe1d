// Package memory is a transactional, in-process Persister backend:
// collections of documents held in memory, mutated only through
// RunInTransaction's clone-mutate-commit cycle so a failed transaction
// never leaves partial writes visible.
package memory

import (
	"context"
	"sync"

	"docsession/internal/core"
)

type snapshot struct {
	collections map[string]map[string]core.Document
}

func newSnapshot() snapshot {
	return snapshot{collections: make(map[string]map[string]core.Document)}
}

func (s snapshot) clone() snapshot {
	out := newSnapshot()
	for coll, docs := range s.collections {
		m := make(map[string]core.Document, len(docs))
		for id, d := range docs {
			m[id] = d
		}
		out.collections[coll] = m
	}
	return out
}

// Store holds every collection's documents behind a single mutex. All
// mutation happens via RunInTransaction: the current snapshot is cloned,
// the callback mutates the clone, and the clone only becomes visible if
// the callback returns nil.
type Store struct {
	mu    sync.RWMutex
	state snapshot
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{state: newSnapshot()}
}

// Transaction is the mutable view of a Store handed to a RunInTransaction
// callback.
type Transaction struct {
	state *snapshot
}

// Put upserts a document.
func (t *Transaction) Put(collection, id string, doc core.Document) {
	if t.state.collections[collection] == nil {
		t.state.collections[collection] = make(map[string]core.Document)
	}
	t.state.collections[collection][id] = doc
}

// Delete removes a document if present.
func (t *Transaction) Delete(collection, id string) {
	delete(t.state.collections[collection], id)
}

// RunInTransaction clones the current state, runs fn against the clone,
// and commits the clone as the new state only if fn succeeds.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx *Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&Transaction{state: &next}); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Get returns a document by collection and id.
func (s *Store) Get(collection, id string) (core.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.state.collections[collection]
	if !ok {
		return nil, false
	}
	d, ok := docs[id]
	return d, ok
}

// Count reports how many documents a collection holds.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.collections[collection])
}
