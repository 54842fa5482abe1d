package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// resolveConcurrency bounds how many references the walker resolves at
// once via errgroup; this is a latency optimization, not a correctness
// requirement; a limit of 1 would still produce the same WalkResult.
const resolveConcurrency = 8

// WalkOutcome is the materialized result of walking a root entity: every
// reachable entity satisfying the requested flags, in an order where a
// parent always precedes its children, plus every embedded value
// encountered along the way.
type WalkOutcome struct {
	Entities []any
	Embedded []any
}

// walker performs a depth-first, cycle-safe traversal of the entity graph
// reachable from a root object. It resolves unresolved References as it
// goes, via resolveFn, so that cascades can continue through them.
type walker struct {
	registry  MappingRegistry
	resolveFn func(ctx context.Context, ref *Ref) (any, error)
}

func newWalker(registry MappingRegistry, resolveFn func(ctx context.Context, ref *Ref) (any, error)) *walker {
	return &walker{registry: registry, resolveFn: resolveFn}
}

// Walk materializes every entity reachable from root that satisfies flags,
// parents before children, visiting each live object at most once.
func (w *walker) Walk(ctx context.Context, root any, flags PropertyFlags) (*WalkOutcome, error) {
	out := &WalkOutcome{}
	visited := make(map[uintptr]bool)
	if err := w.visit(ctx, root, flags, visited, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *walker) visit(ctx context.Context, entity any, flags PropertyFlags, visited map[uintptr]bool, out *WalkOutcome) error {
	key, ok := pointerKey(entity)
	if ok {
		if visited[key] {
			return nil
		}
		visited[key] = true
	}

	out.Entities = append(out.Entities, entity)

	mapping, ok := w.registry.MappingForObject(entity)
	if !ok {
		return UnmappedError{TypeName: typeNameOf(entity)}
	}

	var direct WalkResult
	if err := mapping.Walk(ctx, entity, flags, &direct); err != nil {
		return err
	}
	out.Embedded = append(out.Embedded, direct.Embedded...)

	resolved, err := w.resolveAll(ctx, direct.References)
	if err != nil {
		return err
	}
	for _, child := range resolved {
		if child == nil {
			continue
		}
		if err := w.visit(ctx, child, flags, visited, out); err != nil {
			return err
		}
	}

	for _, child := range direct.Entities {
		if err := w.visit(ctx, child, flags, visited, out); err != nil {
			return err
		}
	}

	return nil
}

// resolveAll resolves a batch of references concurrently, returning
// results in the same order as refs so traversal order stays deterministic.
func (w *walker) resolveAll(ctx context.Context, refs []*Ref) ([]any, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	results := make([]any, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			obj, err := w.resolveFn(gctx, ref)
			if err != nil {
				return err
			}
			results[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
