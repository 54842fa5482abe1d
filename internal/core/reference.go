package core

import (
	"context"
	"sync"
)

// Ref is an unresolved reference: a mapping and an identity, with no
// guarantee the target has been loaded yet. Resolve fetches and links the
// target exactly once; subsequent calls return the cached result. This
// replaces a resolved/unresolved union with a single type that carries its
// own resolution state.
type Ref struct {
	mapping EntityMapping
	id      string

	mu       sync.Mutex
	resolve  func(ctx context.Context, id string) (any, error)
	resolved any
	done     bool
}

// NewRef builds an unresolved reference. resolveFn is supplied by the
// session and performs the actual load-and-link; Ref itself holds no
// knowledge of persisters or the identity table.
func NewRef(mapping EntityMapping, id string, resolveFn func(ctx context.Context, id string) (any, error)) *Ref {
	return &Ref{mapping: mapping, id: id, resolve: resolveFn}
}

// Mapping returns the target's mapping.
func (r *Ref) Mapping() EntityMapping { return r.mapping }

// ID returns the target's identity.
func (r *Ref) ID() string { return r.id }

// Resolved reports whether Resolve has already succeeded.
func (r *Ref) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Resolve loads and links the referenced entity, caching the result. It is
// safe to call concurrently; only the first caller pays for the load.
func (r *Ref) Resolve(ctx context.Context) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.resolved, nil
	}

	obj, err := r.resolve(ctx, r.id)
	if err != nil {
		return nil, ReferenceResolutionError{ID: r.id, Cause: err}
	}

	r.resolved = obj
	r.done = true
	return obj, nil
}
