package core

import (
	"context"
	"reflect"
	"strconv"
	"time"
)

// doFlush runs the three-pass flush: dirty-check every implicitly or
// explicitly dirty managed link, insert every link scheduled for insert,
// then delete every link scheduled for delete or already in the Removed
// state. Persister operations are grouped into one Batch per persister and
// executed only after all three passes have queued their operations. Links
// take their new snapshot and drop their scheduled operation only after
// every batch has executed; a persister or batch error leaves them as they
// were.
func (s *Session) doFlush(ctx context.Context) error {
	start := time.Now()
	links := s.identity.All()
	batches := make(map[Persister]Batch)
	getBatch := func(p Persister) Batch {
		if b, ok := batches[p]; ok {
			return b
		}
		b := p.NewBatch()
		batches[p] = b
		return b
	}

	var inserts, updates, deletes int
	type pending struct {
		link *ObjectLink
		doc  Document
	}
	var reconcile []pending

	for _, link := range links {
		if link.State() != StateManaged {
			continue
		}
		op := link.ScheduledOp()
		if op == OpScheduledInsert || op == OpScheduledDelete {
			continue
		}
		persister := link.Persister()
		if op != OpScheduledDirtyCheck && persister.ChangeTracking() != DeferredImplicit {
			continue
		}
		b := getBatch(persister)
		doc, err := persister.DirtyCheck(ctx, b, link.ID(), link.Object(), link.Original())
		if err != nil {
			return PersisterError{Op: "dirtyCheck", ID: link.ID(), Cause: err}
		}
		if !reflect.DeepEqual(doc, link.Original()) {
			updates++
		}
		reconcile = append(reconcile, pending{link: link, doc: doc})
	}

	for _, link := range links {
		if link.ScheduledOp() != OpScheduledInsert {
			continue
		}
		persister := link.Persister()
		b := getBatch(persister)
		doc, err := persister.Insert(ctx, b, link.ID(), link.Object())
		if err != nil {
			return PersisterError{Op: "insert", ID: link.ID(), Cause: err}
		}
		reconcile = append(reconcile, pending{link: link, doc: doc})
		inserts++
	}

	var toUnlink []*ObjectLink
	for _, link := range links {
		if link.ScheduledOp() != OpScheduledDelete && link.State() != StateRemoved {
			continue
		}
		persister := link.Persister()
		b := getBatch(persister)
		if err := persister.Remove(ctx, b, link.ID()); err != nil {
			return PersisterError{Op: "remove", ID: link.ID(), Cause: err}
		}
		toUnlink = append(toUnlink, link)
		deletes++
	}

	var committed []string
	i := 0
	for _, batch := range batches {
		if err := batch.Execute(ctx); err != nil {
			return BatchError{Partial: committed, Cause: err}
		}
		committed = append(committed, strconv.Itoa(i))
		i++
	}

	for _, p := range reconcile {
		p.link.setOriginal(p.doc)
		p.link.setScheduledOp(OpNone)
	}

	for _, link := range toUnlink {
		s.identity.Unlink(link)
		link.mapping.ClearIdentifier(link.Object())
		link.setState(StateDetached)
	}

	if s.metrics != nil {
		s.metrics.ObserveFlush(time.Since(start).Seconds(), inserts, updates, deletes)
	}
	return nil
}
