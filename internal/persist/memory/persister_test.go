package memory

import (
	"context"
	"testing"

	"docsession/internal/core"
)

type widget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fixedGen struct{ n int }

func (g *fixedGen) Generate() string { g.n++; return "w-0" }
func (fixedGen) IsIdentifier(string) bool { return true }

func TestPersisterInsertFindRefreshRemove(t *testing.T) {
	store := NewStore()
	p := NewPersister(store, "widgets", &widget{}, &fixedGen{})
	ctx := context.Background()

	b := p.NewBatch()
	w := &widget{ID: "w-1", Name: "gizmo"}
	if _, err := p.Insert(ctx, b, "w-1", w); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}

	obj, doc, err := p.FindOneByID(ctx, "w-1")
	if err != nil || obj == nil {
		t.Fatalf("find: %v %v", obj, err)
	}
	if obj.(*widget).Name != "gizmo" {
		t.Fatalf("unexpected loaded widget: %+v", obj)
	}
	if doc["name"] != "gizmo" {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	stored := &widget{}
	if _, err := p.Refresh(ctx, "w-1", stored); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if stored.Name != "gizmo" {
		t.Fatalf("unexpected refreshed widget: %+v", stored)
	}

	b2 := p.NewBatch()
	if err := p.Remove(ctx, b2, "w-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := b2.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, _, err := p.FindOneByID(ctx, "w-1"); err != nil {
		t.Fatalf("find after remove: %v", err)
	}
	if obj, _, _ := p.FindOneByID(ctx, "w-1"); obj != nil {
		t.Fatalf("expected no widget after remove, got %+v", obj)
	}
}

func TestDirtyCheckOnlyAppendsWhenChanged(t *testing.T) {
	store := NewStore()
	p := NewPersister(store, "widgets", &widget{}, &fixedGen{})
	ctx := context.Background()

	original, err := p.DirtyCheck(ctx, p.NewBatch(), "w-2", &widget{ID: "w-2", Name: "a"}, core.Document{"id": "w-2", "name": "a"})
	if err != nil {
		t.Fatalf("dirty check: %v", err)
	}
	if original["name"] != "a" {
		t.Fatalf("expected unchanged document returned, got %+v", original)
	}

	b := p.NewBatch()
	changed, err := p.DirtyCheck(ctx, b, "w-2", &widget{ID: "w-2", Name: "b"}, core.Document{"id": "w-2", "name": "a"})
	if err != nil {
		t.Fatalf("dirty check: %v", err)
	}
	if changed["name"] != "b" {
		t.Fatalf("expected updated document, got %+v", changed)
	}
	if grouped := b.(*txBatch).grouped; grouped.Len() != 1 {
		t.Fatalf("expected one queued update op, got %d", grouped.Len())
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		tx.Put("widgets", "w-3", core.Document{"id": "w-3"})
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if store.Count("widgets") != 0 {
		t.Fatalf("expected failed transaction to leave no trace")
	}
}
