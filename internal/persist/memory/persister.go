package memory

import (
	"context"
	"fmt"
	"reflect"

	"docsession/internal/batch"
	"docsession/internal/core"
	"docsession/internal/persist"
)

// Persister is a core.Persister backed by an in-process Store. One
// Persister serves one mapping's collection.
type Persister struct {
	store      *Store
	collection string
	sample     any
	idgen      core.IdentityGenerator
	tracking   core.ChangeTracking
}

// NewPersister binds collection in store to a mapping whose entities look
// like sample (e.g. &User{}), minting identities via idgen.
func NewPersister(store *Store, collection string, sample any, idgen core.IdentityGenerator) *Persister {
	return &Persister{store: store, collection: collection, sample: sample, idgen: idgen, tracking: core.DeferredImplicit}
}

func (p *Persister) Identity() core.IdentityGenerator    { return p.idgen }
func (p *Persister) ChangeTracking() core.ChangeTracking { return p.tracking }

func (p *Persister) FindOneByID(_ context.Context, id string) (any, core.Document, error) {
	doc, ok := p.store.Get(p.collection, id)
	if !ok {
		return nil, nil, nil
	}
	target := persist.New(p.sample)
	if err := persist.Populate(doc, target); err != nil {
		return nil, nil, err
	}
	return target, doc, nil
}

func (p *Persister) Refresh(_ context.Context, id string, entity any) (core.Document, error) {
	doc, ok := p.store.Get(p.collection, id)
	if !ok {
		return nil, fmt.Errorf("memory: %s/%s not found", p.collection, id)
	}
	if err := persist.Populate(doc, entity); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *Persister) DirtyCheck(_ context.Context, b core.Batch, id string, entity any, original core.Document) (core.Document, error) {
	doc, err := persist.ToDocument(entity)
	if err != nil {
		return nil, err
	}
	if reflect.DeepEqual(doc, original) {
		return original, nil
	}
	b.Append(core.BatchOp{Collection: p.collection, Kind: core.OpUpdate, ID: id, Document: doc})
	return doc, nil
}

func (p *Persister) Insert(_ context.Context, b core.Batch, id string, entity any) (core.Document, error) {
	doc, err := persist.ToDocument(entity)
	if err != nil {
		return nil, err
	}
	b.Append(core.BatchOp{Collection: p.collection, Kind: core.OpInsert, ID: id, Document: doc})
	return doc, nil
}

func (p *Persister) Remove(_ context.Context, b core.Batch, id string) error {
	b.Append(core.BatchOp{Collection: p.collection, Kind: core.OpDelete, ID: id})
	return nil
}

func (p *Persister) NewBatch() core.Batch {
	return &txBatch{store: p.store, grouped: batch.New()}
}

type txBatch struct {
	store   *Store
	grouped *batch.Grouped
}

func (b *txBatch) Append(op core.BatchOp) { b.grouped.Append(op) }

func (b *txBatch) Execute(ctx context.Context) error {
	return b.store.RunInTransaction(ctx, func(tx *Transaction) error {
		for _, coll := range b.grouped.Collections() {
			for _, op := range b.grouped.Ops(coll) {
				switch op.Kind {
				case core.OpInsert, core.OpUpdate:
					tx.Put(coll, op.ID, op.Document)
				case core.OpDelete:
					tx.Delete(coll, op.ID)
				}
			}
		}
		return nil
	})
}
