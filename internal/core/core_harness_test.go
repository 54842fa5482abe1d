package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// testEntity is the fixture type used across internal/core's tests: a
// small mapped entity with an optional cascade child and an optional
// lazy reference, enough to exercise save/remove/refresh/merge and the
// graph walker without needing a real persistence backend.
type testEntity struct {
	ID       string
	Name     string
	Children []*testEntity
	Ref      *Ref
}

type testIdentityGen struct {
	mu sync.Mutex
	n  int
}

func (g *testIdentityGen) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func (g *testIdentityGen) IsIdentifier(v string) bool { return strings.HasPrefix(v, "id-") }

type testMapping struct {
	idgen *testIdentityGen
}

func (m *testMapping) ID() int                           { return 1 }
func (m *testMapping) Name() string                      { return "test_entities" }
func (m *testMapping) InheritanceRoot() EntityMapping     { return m }
func (m *testMapping) Identity() IdentityGenerator        { return m.idgen }

func (m *testMapping) IdentifierOf(entity any) (string, bool) {
	e := entity.(*testEntity)
	if e.ID == "" {
		return "", false
	}
	return e.ID, true
}

func (m *testMapping) SetIdentifier(entity any, id string) { entity.(*testEntity).ID = id }
func (m *testMapping) ClearIdentifier(entity any)           { entity.(*testEntity).ID = "" }

func (m *testMapping) Walk(_ context.Context, entity any, flags PropertyFlags, out *WalkResult) error {
	e := entity.(*testEntity)
	if flags.Any(FlagCascadeAll) {
		out.Entities = append(out.Entities, toAny(e.Children)...)
	}
	if e.Ref != nil {
		out.References = append(out.References, e.Ref)
	}
	return nil
}

func toAny(children []*testEntity) []any {
	out := make([]any, len(children))
	for i, c := range children {
		out[i] = c
	}
	return out
}

type testRegistry struct {
	mapping *testMapping
}

func (r *testRegistry) MappingForObject(obj any) (EntityMapping, bool) {
	if _, ok := obj.(*testEntity); ok {
		return r.mapping, true
	}
	return nil, false
}

func (r *testRegistry) MappingForType(ctor any) (EntityMapping, bool) {
	if _, ok := ctor.(*testEntity); ok {
		return r.mapping, true
	}
	return nil, false
}

func docOf(e *testEntity) Document {
	return Document{"id": e.ID, "name": e.Name}
}

func fromDoc(doc Document, e *testEntity) {
	if id, ok := doc["id"].(string); ok {
		e.ID = id
	}
	if name, ok := doc["name"].(string); ok {
		e.Name = name
	}
}

type testPersister struct {
	mu             sync.Mutex
	idgen          *testIdentityGen
	store          map[string]*testEntity
	changeTracking ChangeTracking
	failOnExecute  bool
}

func newTestPersister(idgen *testIdentityGen) *testPersister {
	return &testPersister{idgen: idgen, store: make(map[string]*testEntity)}
}

func (p *testPersister) Identity() IdentityGenerator    { return p.idgen }
func (p *testPersister) ChangeTracking() ChangeTracking { return p.changeTracking }

func (p *testPersister) FindOneByID(_ context.Context, id string) (any, Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.store[id]
	if !ok {
		return nil, nil, nil
	}
	cp := *e
	return &cp, docOf(&cp), nil
}

func (p *testPersister) Refresh(_ context.Context, id string, entity any) (Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.store[id]
	if !ok {
		return nil, fmt.Errorf("not found: %s", id)
	}
	target := entity.(*testEntity)
	target.Name = e.Name
	target.ID = e.ID
	return docOf(e), nil
}

func (p *testPersister) DirtyCheck(_ context.Context, b Batch, id string, entity any, original Document) (Document, error) {
	e := entity.(*testEntity)
	doc := docOf(e)
	if reflect.DeepEqual(doc, original) {
		return original, nil
	}
	b.Append(BatchOp{Collection: "test_entities", Kind: OpUpdate, ID: id, Document: doc})
	return doc, nil
}

func (p *testPersister) Insert(_ context.Context, b Batch, id string, entity any) (Document, error) {
	doc := docOf(entity.(*testEntity))
	b.Append(BatchOp{Collection: "test_entities", Kind: OpInsert, ID: id, Document: doc})
	return doc, nil
}

func (p *testPersister) Remove(_ context.Context, b Batch, id string) error {
	b.Append(BatchOp{Collection: "test_entities", Kind: OpDelete, ID: id})
	return nil
}

func (p *testPersister) NewBatch() Batch { return &testBatch{persister: p} }

func (p *testPersister) snapshot(id string) (*testEntity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.store[id]
	return e, ok
}

type testBatch struct {
	persister *testPersister
	ops       []BatchOp
}

func (b *testBatch) Append(op BatchOp) { b.ops = append(b.ops, op) }

func (b *testBatch) Execute(_ context.Context) error {
	if b.persister.failOnExecute {
		return fmt.Errorf("simulated batch failure")
	}
	b.persister.mu.Lock()
	defer b.persister.mu.Unlock()
	for _, op := range b.ops {
		switch op.Kind {
		case OpInsert, OpUpdate:
			e := &testEntity{}
			fromDoc(op.Document, e)
			b.persister.store[op.ID] = e
		case OpDelete:
			delete(b.persister.store, op.ID)
		}
	}
	return nil
}

type testPersisterRegistry struct {
	persister *testPersister
}

func (r *testPersisterRegistry) PersisterFor(EntityMapping) (Persister, bool) {
	return r.persister, true
}

func newTestSession() (*Session, *testPersister) {
	idgen := &testIdentityGen{}
	mapping := &testMapping{idgen: idgen}
	persister := newTestPersister(idgen)
	registry := &testRegistry{mapping: mapping}
	persisters := &testPersisterRegistry{persister: persister}
	return NewSession(registry, persisters, nil), persister
}
