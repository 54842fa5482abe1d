package core

import "context"

// Document is a persister-level snapshot of an entity: a plain, JSON-ish
// value good enough for storage and for dirty-check comparison. Persisters
// build these from entities and back; the session core never interprets
// their contents.
type Document map[string]any

// IdentityGenerator mints and parses identity values for one mapping.
type IdentityGenerator interface {
	Generate() string
	IsIdentifier(v string) bool
}

// WalkResult accumulates the direct children discovered while walking one
// entity: other entities (already resolved, reachable in memory),
// unresolved references, and embedded (non-identity) values.
type WalkResult struct {
	Entities   []any
	References []*Ref
	Embedded   []any
}

func (w *WalkResult) reset() {
	w.Entities = w.Entities[:0]
	w.References = w.References[:0]
	w.Embedded = w.Embedded[:0]
}

// EntityMapping describes how one Go type participates in the session:
// its identity generator and how to discover the entities, references, and
// embedded values reachable directly from one instance.
type EntityMapping interface {
	// ID is a small stable integer used to key the persister cache.
	ID() int
	// Name is the mapping's collection/bucket name, used by persisters
	// and the batch grouping.
	Name() string
	// InheritanceRoot returns the mapping that owns identity generation
	// and persister selection for this type; for a flat (non-inherited)
	// mapping this returns itself.
	InheritanceRoot() EntityMapping
	Identity() IdentityGenerator
	// IdentifierOf reads the entity's own identity attribute, if the
	// mapping declares one and it has been set. It never allocates an
	// identity; it only reports one that already exists on the value.
	IdentifierOf(entity any) (string, bool)
	// SetIdentifier stamps id onto the entity's identity attribute.
	SetIdentifier(entity any, id string)
	// ClearIdentifier removes a previously stamped identity attribute.
	ClearIdentifier(entity any)
	// Walk populates out with entity's direct children that satisfy
	// flags. It does not recurse into discovered entities; the caller
	// (the graph walker) is responsible for that.
	Walk(ctx context.Context, entity any, flags PropertyFlags, out *WalkResult) error
}

// MappingRegistry resolves the EntityMapping for a live object or for a
// constructor value identifying a registered type (typically a nil typed
// pointer, e.g. (*User)(nil), used purely as a type token).
type MappingRegistry interface {
	MappingForObject(obj any) (EntityMapping, bool)
	MappingForType(ctor any) (EntityMapping, bool)
}

// ChangeTracking describes how a persister expects the session to notify
// it of modifications.
type ChangeTracking int

const (
	// DeferredImplicit means the session must dirty-check entities
	// itself by diffing against the original document at flush time.
	DeferredImplicit ChangeTracking = iota
	// DeferredExplicit means a managed entity is dirty-checked at flush
	// time only after a save call has scheduled it for a dirty check;
	// unsaved mutations are not written.
	DeferredExplicit
)

// OpKind identifies the kind of mutation a BatchOp represents.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

// BatchOp is one persister-level mutation queued inside a Batch.
type BatchOp struct {
	Collection string
	Kind       OpKind
	ID         string
	Document   Document
}

// Batch accumulates BatchOp values across one flush and executes them,
// grouped however the concrete persister backend finds efficient.
type Batch interface {
	Append(op BatchOp)
	Execute(ctx context.Context) error
}

// Persister is the storage-facing half of one mapping: it turns entities
// into documents and back, and contributes operations to a Batch.
type Persister interface {
	Identity() IdentityGenerator
	ChangeTracking() ChangeTracking
	// FindOneByID loads the entity and its raw document snapshot.
	FindOneByID(ctx context.Context, id string) (any, Document, error)
	// Refresh rehydrates entity in place from storage and returns the
	// fresh document snapshot.
	Refresh(ctx context.Context, id string, entity any) (Document, error)
	// DirtyCheck compares entity against original and, if different,
	// appends an update BatchOp. It returns the document that should
	// become the new "original" snapshot (unchanged if nothing differed).
	DirtyCheck(ctx context.Context, b Batch, id string, entity any, original Document) (Document, error)
	// Insert appends an insert BatchOp and returns the document snapshot
	// that should be recorded as original once the batch commits.
	Insert(ctx context.Context, b Batch, id string, entity any) (Document, error)
	// Remove appends a delete BatchOp.
	Remove(ctx context.Context, b Batch, id string) error
	// NewBatch returns an empty Batch of this persister's concrete kind.
	NewBatch() Batch
}

// PersisterRegistry resolves the Persister bound to a mapping.
type PersisterRegistry interface {
	PersisterFor(mapping EntityMapping) (Persister, bool)
}

// MetricsRecorder observes session activity. Session tolerates a nil
// recorder field by skipping calls entirely; the implementations in
// internal/metrics need a non-nil receiver built by their constructors.
type MetricsRecorder interface {
	ObserveFlush(durationSeconds float64, inserts, updates, deletes int)
	ObserveQueueDepth(depth int)
	ObserveTaskDispatch(action string)
}
