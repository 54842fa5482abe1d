package mapping

import (
	"reflect"
	"sync"

	"docsession/internal/core"
)

// Registry is a MappingRegistry and PersisterRegistry keyed by Go struct
// type: one StructMapping and one core.Persister per registered type.
type Registry struct {
	mu         sync.RWMutex
	byType     map[reflect.Type]*StructMapping
	persisters map[int]core.Persister
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:     make(map[reflect.Type]*StructMapping),
		persisters: make(map[int]core.Persister),
	}
}

// Register associates mapping with its struct type and binds persister to
// it. sample must be the same kind of pointer passed to New for mapping.
func (r *Registry) Register(sample any, mapping *StructMapping, persister core.Persister) {
	typ := reflect.TypeOf(sample).Elem()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[typ] = mapping
	r.persisters[mapping.ID()] = persister
}

func (r *Registry) lookup(t reflect.Type) (*StructMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byType[t]
	return m, ok
}

// MappingForObject implements core.MappingRegistry.
func (r *Registry) MappingForObject(obj any) (core.EntityMapping, bool) {
	t := reflect.TypeOf(obj)
	if t == nil || t.Kind() != reflect.Ptr {
		return nil, false
	}
	m, ok := r.lookup(t.Elem())
	return m, ok
}

// MappingForType implements core.MappingRegistry using a typed nil (or any
// other) pointer purely as a type token.
func (r *Registry) MappingForType(ctor any) (core.EntityMapping, bool) {
	t := reflect.TypeOf(ctor)
	if t == nil || t.Kind() != reflect.Ptr {
		return nil, false
	}
	m, ok := r.lookup(t.Elem())
	return m, ok
}

// PersisterFor implements core.PersisterRegistry.
func (r *Registry) PersisterFor(m core.EntityMapping) (core.Persister, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.persisters[m.ID()]
	return p, ok
}
