// Package sqlstore is the database/sql-backed half of the sqlite and
// postgres persister backends: every collection's documents live as JSON
// blobs in one generic "documents" table, keyed by (collection, id),
// exactly the bucket-snapshot shape the teacher's own SQL stores use, just
// generalized from a fixed set of entity tables to an arbitrary mapping
// name.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docsession/internal/batch"
	"docsession/internal/core"
	"docsession/internal/persist"
)

// Dialect papers over the placeholder syntax difference between SQLite's
// "?" and Postgres's "$1, $2, ...".
type Dialect interface {
	Placeholder(argPos int) string
	// DocPlaceholder is the placeholder used for the doc column itself;
	// Postgres needs an explicit ::jsonb cast there since a driver-level
	// string parameter otherwise binds as text.
	DocPlaceholder(argPos int) string
	CreateTableSQL() string
}

// Store wraps a *sql.DB holding the shared "documents" table.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open wraps an already-opened *sql.DB and ensures the documents table
// exists.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, dialect.CreateTableSQL()); err != nil {
		return nil, fmt.Errorf("sqlstore: create table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) ph(n int) string { return s.dialect.Placeholder(n) }

// Get loads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, bool, error) {
	query := fmt.Sprintf("SELECT doc FROM documents WHERE collection = %s AND id = %s", s.ph(1), s.ph(2))
	row := s.db.QueryRowContext(ctx, query, collection, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlstore: get %s/%s: %w", collection, id, err)
	}
	var doc core.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("sqlstore: decode %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

// Execute applies a grouped batch inside one SQL transaction, upserting
// for insert/update ops and deleting for delete ops.
func (s *Store) Execute(ctx context.Context, grouped *batch.Grouped) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(
		"INSERT INTO documents (collection, id, doc) VALUES (%s, %s, %s) "+
			"ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc",
		s.ph(1), s.ph(2), s.dialect.DocPlaceholder(3))
	del := fmt.Sprintf("DELETE FROM documents WHERE collection = %s AND id = %s", s.ph(1), s.ph(2))

	for _, coll := range grouped.Collections() {
		for _, op := range grouped.Ops(coll) {
			switch op.Kind {
			case core.OpInsert, core.OpUpdate:
				raw, err := json.Marshal(op.Document)
				if err != nil {
					return fmt.Errorf("sqlstore: encode %s/%s: %w", coll, op.ID, err)
				}
				if _, err := tx.ExecContext(ctx, upsert, coll, op.ID, string(raw)); err != nil {
					return fmt.Errorf("sqlstore: upsert %s/%s: %w", coll, op.ID, err)
				}
			case core.OpDelete:
				if _, err := tx.ExecContext(ctx, del, coll, op.ID); err != nil {
					return fmt.Errorf("sqlstore: delete %s/%s: %w", coll, op.ID, err)
				}
			}
		}
	}
	return tx.Commit()
}

// Persister is a core.Persister for one collection backed by a Store.
type Persister struct {
	store      *Store
	collection string
	sample     any
	idgen      core.IdentityGenerator
}

// NewPersister binds collection in store to entities shaped like sample.
func NewPersister(store *Store, collection string, sample any, idgen core.IdentityGenerator) *Persister {
	return &Persister{store: store, collection: collection, sample: sample, idgen: idgen}
}

func (p *Persister) Identity() core.IdentityGenerator    { return p.idgen }
func (p *Persister) ChangeTracking() core.ChangeTracking { return core.DeferredImplicit }

func (p *Persister) FindOneByID(ctx context.Context, id string) (any, core.Document, error) {
	doc, ok, err := p.store.Get(ctx, p.collection, id)
	if err != nil || !ok {
		return nil, nil, err
	}
	target := persist.New(p.sample)
	if err := persist.Populate(doc, target); err != nil {
		return nil, nil, err
	}
	return target, doc, nil
}

func (p *Persister) Refresh(ctx context.Context, id string, entity any) (core.Document, error) {
	doc, ok, err := p.store.Get(ctx, p.collection, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sqlstore: %s/%s not found", p.collection, id)
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
	if documentsEqual(doc, original) {
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
	return b.store.Execute(ctx, b.grouped)
}

func documentsEqual(a, b core.Document) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}
