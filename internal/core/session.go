package core

import (
	"context"
	"reflect"
	"strings"
	"sync"
)

// SessionStats is a point-in-time snapshot of session activity, intended
// for logging and metrics rather than control flow.
type SessionStats struct {
	Managed       int
	PendingInsert int
	PendingDelete int
	QueueDepth    int
}

// Session is the unit-of-work façade: it owns the identity table and task
// queue and turns save/remove/refresh/flush calls into persister
// operations by way of the graph walker and flush planner.
type Session struct {
	mappings   MappingRegistry
	persisters PersisterRegistry
	identity   *IdentityTable
	queue      *taskQueue
	metrics    MetricsRecorder

	persisterCacheMu sync.Mutex
	persisterCache   map[int]Persister
}

// NewSession constructs a Session bound to the given mapping and persister
// registries. metrics may be nil.
func NewSession(mappings MappingRegistry, persisters PersisterRegistry, metrics MetricsRecorder) *Session {
	q := newTaskQueue()
	s := &Session{
		mappings:       mappings,
		persisters:     persisters,
		identity:       NewIdentityTable(),
		queue:          q,
		metrics:        metrics,
		persisterCache: make(map[int]Persister),
	}
	q.onDepthChange = func(depth int) {
		if metrics != nil {
			metrics.ObserveQueueDepth(depth)
		}
	}
	return s
}

func (s *Session) persisterFor(mapping EntityMapping) (Persister, error) {
	root := mapping.InheritanceRoot()
	s.persisterCacheMu.Lock()
	defer s.persisterCacheMu.Unlock()
	if p, ok := s.persisterCache[root.ID()]; ok {
		return p, nil
	}
	p, ok := s.persisters.PersisterFor(root)
	if !ok {
		return nil, UnmappedError{TypeName: root.Name()}
	}
	s.persisterCache[root.ID()] = p
	return p, nil
}

func (s *Session) dispatchMetric(action Action) {
	if s.metrics != nil {
		s.metrics.ObserveTaskDispatch(action.String())
	}
}

func (s *Session) newWalker() *walker {
	return newWalker(s.mappings, s.resolveRef)
}

// resolveRef is the walker's hook for turning a Ref into a live object: it
// checks the identity table first, falling back to the persister.
func (s *Session) resolveRef(ctx context.Context, ref *Ref) (any, error) {
	if link, ok := s.identity.ByID(ref.ID()); ok {
		return link.Object(), nil
	}
	mapping := ref.Mapping()
	persister, err := s.persisterFor(mapping)
	if err != nil {
		return nil, err
	}
	obj, doc, err := persister.FindOneByID(ctx, ref.ID())
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	if _, err := s.identity.Link(ref.ID(), obj, mapping, persister, OpNone, doc); err != nil {
		return nil, err
	}
	return obj, nil
}

// --- Save ---

func (s *Session) Save(ctx context.Context, entity any) error {
	s.dispatchMetric(ActionSave)
	return s.queue.enqueue(ctx, ActionSave, func(ctx context.Context) error {
		outcome, err := s.newWalker().Walk(ctx, entity, FlagCascadeSave)
		if err != nil {
			return err
		}
		for _, e := range outcome.Entities {
			if err := s.saveOne(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) saveOne(ctx context.Context, entity any) error {
	mapping, ok := s.mappings.MappingForObject(entity)
	if !ok {
		return UnmappedError{TypeName: typeNameOf(entity)}
	}

	if link, ok := s.identity.ByObject(entity); ok {
		switch link.State() {
		case StateDetached:
			return DetachedError{ID: link.ID()}
		case StateRemoved:
			link.setState(StateManaged)
			if link.ScheduledOp() != OpScheduledInsert {
				link.setScheduledOp(OpScheduledDirtyCheck)
			}
		case StateManaged:
			// Implicit change tracking picks this up at flush without
			// further scheduling. Explicit tracking relies on save to
			// mark the link for diffing, since the persister itself
			// won't report dirtiness on its own.
			if link.Persister().ChangeTracking() == DeferredExplicit && link.ScheduledOp() == OpNone {
				link.setScheduledOp(OpScheduledDirtyCheck)
			}
		}
		return nil
	}

	if id, ok := mapping.IdentifierOf(entity); ok {
		if _, linked := s.identity.ByID(id); !linked {
			return DetachedError{ID: id}
		}
		return nil
	}

	persister, err := s.persisterFor(mapping)
	if err != nil {
		return err
	}
	id := persister.Identity().Generate()
	mapping.SetIdentifier(entity, id)
	_, err = s.identity.Link(id, entity, mapping, persister, OpScheduledInsert, nil)
	return err
}

// --- Remove ---

func (s *Session) Remove(ctx context.Context, entity any) error {
	s.dispatchMetric(ActionRemove)
	return s.queue.enqueue(ctx, ActionRemove, func(ctx context.Context) error {
		outcome, err := s.newWalker().Walk(ctx, entity, FlagCascadeRemove)
		if err != nil {
			return err
		}
		// The walker orders parents before children; removal applies in
		// the opposite order so leaves are scheduled for delete before
		// the entities that reference them.
		for i := len(outcome.Entities) - 1; i >= 0; i-- {
			if err := s.removeOne(outcome.Entities[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) removeOne(entity any) error {
	mapping, ok := s.mappings.MappingForObject(entity)
	if !ok {
		return UnmappedError{TypeName: typeNameOf(entity)}
	}

	link, linked := s.identity.ByObject(entity)
	if !linked {
		if id, ok := mapping.IdentifierOf(entity); ok {
			return DetachedError{ID: id}
		}
		return nil
	}

	switch link.State() {
	case StateDetached:
		return DetachedError{ID: link.ID()}
	case StateRemoved:
		return nil
	}

	if link.ScheduledOp() == OpScheduledInsert {
		s.identity.Unlink(link)
		mapping.ClearIdentifier(entity)
		return nil
	}

	link.setState(StateRemoved)
	link.setScheduledOp(OpScheduledDelete)
	return nil
}

// --- Detach ---

func (s *Session) Detach(ctx context.Context, entity any) error {
	s.dispatchMetric(ActionDetach)
	return s.queue.enqueue(ctx, ActionDetach, func(ctx context.Context) error {
		outcome, err := s.newWalker().Walk(ctx, entity, FlagCascadeDetach)
		if err != nil {
			return err
		}
		for _, e := range outcome.Entities {
			if link, ok := s.identity.ByObject(e); ok {
				s.identity.Unlink(link)
				link.setState(StateDetached)
			}
		}
		return nil
	})
}

// --- Refresh ---

func (s *Session) Refresh(ctx context.Context, entity any) error {
	s.dispatchMetric(ActionRefresh)
	return s.queue.enqueue(ctx, ActionRefresh, func(ctx context.Context) error {
		outcome, err := s.newWalker().Walk(ctx, entity, FlagCascadeRefresh)
		if err != nil {
			return err
		}
		for _, e := range outcome.Entities {
			if err := s.refreshOne(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) refreshOne(ctx context.Context, entity any) error {
	link, ok := s.identity.ByObject(entity)
	if !ok {
		return DetachedError{ID: ""}
	}
	doc, err := link.Persister().Refresh(ctx, link.ID(), entity)
	if err != nil {
		return PersisterError{Op: "refresh", ID: link.ID(), Cause: err}
	}
	link.setOriginal(doc)
	return nil
}

// --- Clear ---

func (s *Session) Clear(ctx context.Context) error {
	s.dispatchMetric(ActionClear)
	return s.queue.enqueue(ctx, ActionClear, func(ctx context.Context) error {
		for _, link := range s.identity.All() {
			s.identity.Unlink(link)
			link.setState(StateDetached)
		}
		return nil
	})
}

// --- Find / Fetch ---

func (s *Session) Find(ctx context.Context, ctor any, id string) (any, error) {
	s.dispatchMetric(ActionFind)
	var result any
	err := s.queue.enqueue(ctx, ActionFind, func(ctx context.Context) error {
		if link, ok := s.identity.ByID(id); ok {
			result = link.Object()
			return nil
		}
		mapping, ok := s.mappings.MappingForType(ctor)
		if !ok {
			return UnmappedError{TypeName: typeNameOf(ctor)}
		}
		persister, err := s.persisterFor(mapping)
		if err != nil {
			return err
		}
		obj, doc, err := persister.FindOneByID(ctx, id)
		if err != nil {
			return PersisterError{Op: "findOneByID", ID: id, Cause: err}
		}
		if obj == nil {
			return nil
		}
		if _, err := s.identity.Link(id, obj, mapping, persister, OpNone, doc); err != nil {
			return err
		}
		result = obj
		return nil
	})
	return result, err
}

// Fetch resolves target (an *Ref or an already-loaded entity) and then
// dereferences each dotted path against the result. If target is a
// Reference, resolving it loads it via its persister and links it,
// exactly once. An empty paths list performs only that resolution step
// and otherwise leaves the result untouched.
func (s *Session) Fetch(ctx context.Context, target any, paths ...string) (any, error) {
	s.dispatchMetric(ActionFetch)
	var result any
	err := s.queue.enqueue(ctx, ActionFetch, func(ctx context.Context) error {
		resolved, err := s.resolveFetchTarget(ctx, target)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if err := s.dereferencePath(ctx, resolved, path); err != nil {
				return err
			}
		}
		result = resolved
		return nil
	})
	return result, err
}

func (s *Session) resolveFetchTarget(ctx context.Context, target any) (any, error) {
	ref, ok := target.(*Ref)
	if !ok {
		return target, nil
	}
	return ref.Resolve(ctx)
}

// dereferencePath walks a "."-separated field path from root, resolving
// any *Ref it encounters along the way (loading and linking it) so a
// single fetch call can chase a chain of references. A missing field or
// a non-struct value stops the walk silently; paths are best-effort
// beyond the initial reference-resolution step.
func (s *Session) dereferencePath(ctx context.Context, root any, path string) error {
	v := reflect.ValueOf(root)
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		var err error
		v, err = s.dereferenceValue(ctx, v)
		if err != nil {
			return err
		}
		if v.Kind() != reflect.Struct {
			return nil
		}
		v = v.FieldByName(segment)
		if !v.IsValid() {
			return nil
		}
	}
	_, err := s.dereferenceValue(ctx, v)
	return err
}

// dereferenceValue follows pointer indirection from v, resolving a *Ref
// in place if it finds one.
func (s *Session) dereferenceValue(ctx context.Context, v reflect.Value) (reflect.Value, error) {
	for v.IsValid() && v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return v, nil
		}
		if ref, ok := v.Interface().(*Ref); ok {
			obj, err := ref.Resolve(ctx)
			if err != nil {
				return reflect.Value{}, err
			}
			if obj == nil {
				return reflect.Value{}, nil
			}
			v = reflect.ValueOf(obj)
			continue
		}
		v = v.Elem()
	}
	return v, nil
}

// --- GetReference / Contains / GetID (pure, no I/O, not queued) ---

// GetReference returns the already-managed entity if id is linked, or a
// new unresolved Ref otherwise. It never performs I/O and is not subject
// to the task queue's ordering, matching its read-only, allocation-only
// nature.
func (s *Session) GetReference(ctor any, id string) (any, error) {
	if link, ok := s.identity.ByID(id); ok {
		return link.Object(), nil
	}
	mapping, ok := s.mappings.MappingForType(ctor)
	if !ok {
		return nil, UnmappedError{TypeName: typeNameOf(ctor)}
	}
	return NewRef(mapping, id, func(ctx context.Context, id string) (any, error) {
		persister, err := s.persisterFor(mapping)
		if err != nil {
			return nil, err
		}
		obj, doc, err := persister.FindOneByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, nil
		}
		if _, err := s.identity.Link(id, obj, mapping, persister, OpNone, doc); err != nil {
			return nil, err
		}
		return obj, nil
	}), nil
}

// Contains reports whether entity is currently managed by this session.
func (s *Session) Contains(entity any) bool {
	link, ok := s.identity.ByObject(entity)
	return ok && link.State() == StateManaged
}

// GetID returns the identity this session has recorded for entity. For a
// managed entity this comes from its ObjectLink; for anything else it
// falls back to reading the entity's own stamped identity attribute, which
// is how a detached-but-identified object is distinguished from one that
// was never saved.
func (s *Session) GetID(entity any) (string, bool) {
	if link, ok := s.identity.ByObject(entity); ok {
		return link.ID(), true
	}
	mapping, ok := s.mappings.MappingForObject(entity)
	if !ok {
		return "", false
	}
	return mapping.IdentifierOf(entity)
}

// --- Merge ---

func (s *Session) Merge(ctx context.Context, detached any) (any, error) {
	s.dispatchMetric(ActionMerge)
	var result any
	err := s.queue.enqueue(ctx, ActionMerge, func(ctx context.Context) error {
		managed, err := s.mergeOne(ctx, detached, make(map[uintptr]any))
		if err != nil {
			return err
		}
		result = managed
		return nil
	})
	return result, err
}

func (s *Session) mergeOne(ctx context.Context, detached any, seen map[uintptr]any) (any, error) {
	if key, ok := pointerKey(detached); ok {
		if already, ok := seen[key]; ok {
			return already, nil
		}
	}

	mapping, ok := s.mappings.MappingForObject(detached)
	if !ok {
		return nil, UnmappedError{TypeName: typeNameOf(detached)}
	}

	id, hasID := mapping.IdentifierOf(detached)
	if !hasID {
		if err := s.saveOne(ctx, detached); err != nil {
			return nil, err
		}
		if key, ok := pointerKey(detached); ok {
			seen[key] = detached
		}
		return s.cascadeMerge(ctx, mapping, detached, detached, seen)
	}

	var managed any
	if link, ok := s.identity.ByID(id); ok {
		managed = link.Object()
		copyStruct(managed, detached)
		link.setScheduledOp(OpScheduledDirtyCheck)
	} else {
		persister, err := s.persisterFor(mapping)
		if err != nil {
			return nil, err
		}
		obj, doc, err := persister.FindOneByID(ctx, id)
		if err != nil {
			return nil, PersisterError{Op: "findOneByID", ID: id, Cause: err}
		}
		if obj == nil {
			return nil, UnmappedError{TypeName: id}
		}
		copyStruct(obj, detached)
		if _, err := s.identity.Link(id, obj, mapping, persister, OpScheduledDirtyCheck, doc); err != nil {
			return nil, err
		}
		managed = obj
	}

	if key, ok := pointerKey(detached); ok {
		seen[key] = managed
	}
	return s.cascadeMerge(ctx, mapping, managed, detached, seen)
}

func (s *Session) cascadeMerge(ctx context.Context, mapping EntityMapping, managed, detached any, seen map[uintptr]any) (any, error) {
	var direct WalkResult
	if err := mapping.Walk(ctx, detached, FlagCascadeMerge, &direct); err != nil {
		return nil, err
	}
	for _, child := range direct.Entities {
		if _, err := s.mergeOne(ctx, child, seen); err != nil {
			return nil, err
		}
	}
	return managed, nil
}

func copyStruct(dst, src any) {
	dv := reflect.ValueOf(dst)
	sv := reflect.ValueOf(src)
	if dv.Kind() != reflect.Ptr || sv.Kind() != reflect.Ptr {
		return
	}
	dv.Elem().Set(sv.Elem())
}

// --- Flush ---

func (s *Session) Flush(ctx context.Context) error {
	s.dispatchMetric(ActionFlush)
	return s.queue.enqueue(ctx, ActionFlush, s.doFlush)
}

// --- Stats ---

func (s *Session) Stats() SessionStats {
	stats := SessionStats{QueueDepth: s.queue.depth()}
	for _, link := range s.identity.All() {
		stats.Managed++
		switch link.ScheduledOp() {
		case OpScheduledInsert:
			stats.PendingInsert++
		case OpScheduledDelete:
			stats.PendingDelete++
		}
	}
	return stats
}
