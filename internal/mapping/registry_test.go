package mapping

import (
	"context"
	"testing"

	"docsession/internal/core"
)

type fakePersister struct{}

func (fakePersister) Identity() core.IdentityGenerator    { return UUIDGenerator{} }
func (fakePersister) ChangeTracking() core.ChangeTracking { return core.DeferredImplicit }
func (fakePersister) FindOneByID(context.Context, string) (any, core.Document, error) {
	return nil, nil, nil
}
func (fakePersister) Refresh(context.Context, string, any) (core.Document, error) { return nil, nil }
func (fakePersister) DirtyCheck(context.Context, core.Batch, string, any, core.Document) (core.Document, error) {
	return nil, nil
}
func (fakePersister) Insert(context.Context, core.Batch, string, any) (core.Document, error) {
	return nil, nil
}
func (fakePersister) Remove(context.Context, core.Batch, string) error { return nil }
func (fakePersister) NewBatch() core.Batch                             { return nil }

func TestRegistryResolvesByObjectAndType(t *testing.T) {
	reg := NewRegistry()
	m, err := New("customers", &customer{}, UUIDGenerator{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	reg.Register(&customer{}, m, fakePersister{})

	if _, ok := reg.MappingForObject(&customer{Name: "a"}); !ok {
		t.Fatalf("expected mapping for object")
	}
	if _, ok := reg.MappingForType((*customer)(nil)); !ok {
		t.Fatalf("expected mapping for type token")
	}
	if _, ok := reg.MappingForObject(&order{}); ok {
		t.Fatalf("expected no mapping for unregistered type")
	}

	resolved, _ := reg.MappingForObject(&customer{})
	if _, ok := reg.PersisterFor(resolved); !ok {
		t.Fatalf("expected persister bound to mapping")
	}
}
