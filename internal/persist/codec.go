// Package persist holds helpers shared by every storage backend
// (memory, sqlite, postgres): turning entities into core.Document
// snapshots and back via JSON, and minting new zero-value entities for a
// mapping's constructor.
package persist

import (
	"encoding/json"
	"fmt"

	"docsession/internal/core"
)

// ToDocument marshals entity to JSON and back into a core.Document. This
// is deliberately generic (no reflection over struct tags beyond what
// encoding/json already does) so any mapped struct works without a
// bespoke codec.
func ToDocument(entity any) (core.Document, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("persist: marshal document: %w", err)
	}
	var doc core.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("persist: unmarshal document: %w", err)
	}
	return doc, nil
}

// Populate decodes doc onto target, which must be a non-nil pointer to
// the entity's struct type.
func Populate(doc core.Document, target any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("persist: marshal snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("persist: unmarshal into target: %w", err)
	}
	return nil
}

// New returns a fresh zero-value instance of the same pointer-to-struct
// type as sample, e.g. New(&User{}) returns a *User.
func New(sample any) any {
	return newLike(sample)
}
