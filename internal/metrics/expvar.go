// Package metrics provides core.MetricsRecorder implementations: a
// dependency-free expvar recorder for simple deployments, and a
// Prometheus recorder for anything scraped by a real monitoring stack.
package metrics

import (
	"expvar"
	"sync"
)

// ExpvarRecorder publishes session activity under expvar, the way a
// small service with no metrics backend would still want visibility into
// flush volume and queue depth via /debug/vars.
type ExpvarRecorder struct {
	mu sync.Mutex

	flushes    *expvar.Int
	inserts    *expvar.Int
	updates    *expvar.Int
	deletes    *expvar.Int
	queueDepth *expvar.Int
	dispatched *expvar.Map
}

// NewExpvarRecorder publishes a fresh set of counters under the given
// expvar namespace prefix. Calling this twice with the same prefix in the
// same process panics, matching expvar.Publish's own behavior.
func NewExpvarRecorder(prefix string) *ExpvarRecorder {
	return &ExpvarRecorder{
		flushes:    expvar.NewInt(prefix + ".flushes"),
		inserts:    expvar.NewInt(prefix + ".inserts"),
		updates:    expvar.NewInt(prefix + ".updates"),
		deletes:    expvar.NewInt(prefix + ".deletes"),
		queueDepth: expvar.NewInt(prefix + ".queue_depth"),
		dispatched: expvar.NewMap(prefix + ".dispatched"),
	}
}

func (r *ExpvarRecorder) ObserveFlush(_ float64, inserts, updates, deletes int) {
	r.flushes.Add(1)
	r.inserts.Add(int64(inserts))
	r.updates.Add(int64(updates))
	r.deletes.Add(int64(deletes))
}

func (r *ExpvarRecorder) ObserveQueueDepth(depth int) {
	r.queueDepth.Set(int64(depth))
}

func (r *ExpvarRecorder) ObserveTaskDispatch(action string) {
	r.dispatched.Add(action, 1)
}
