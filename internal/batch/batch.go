// Package batch provides a grouped-by-collection accumulator for
// core.BatchOp values, shared by every persister backend. Grouping ops by
// collection lets a backend issue one bulk statement per collection
// instead of one round trip per entity.
package batch

import "docsession/internal/core"

// Grouped buffers core.BatchOp values and exposes them grouped by
// collection name, in the order each collection was first touched and
// with per-collection op order preserved.
type Grouped struct {
	order []string
	ops   map[string][]core.BatchOp
}

// New returns an empty Grouped batch.
func New() *Grouped {
	return &Grouped{ops: make(map[string][]core.BatchOp)}
}

// Append implements core.Batch.
func (g *Grouped) Append(op core.BatchOp) {
	if _, ok := g.ops[op.Collection]; !ok {
		g.order = append(g.order, op.Collection)
	}
	g.ops[op.Collection] = append(g.ops[op.Collection], op)
}

// Collections returns the touched collection names in first-seen order.
func (g *Grouped) Collections() []string {
	return g.order
}

// Ops returns the buffered operations for one collection, in append order.
func (g *Grouped) Ops(collection string) []core.BatchOp {
	return g.ops[collection]
}

// Len reports the total number of buffered operations across collections.
func (g *Grouped) Len() int {
	n := 0
	for _, ops := range g.ops {
		n += len(ops)
	}
	return n
}
