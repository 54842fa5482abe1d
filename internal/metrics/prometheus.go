package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusRecorder publishes session activity as Prometheus metrics. It
// must be registered with a prometheus.Registerer before use.
type PrometheusRecorder struct {
	flushDuration prometheus.Histogram
	flushOps      *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	dispatched    *prometheus.CounterVec
}

// NewPrometheusRecorder builds and registers the recorder's collectors
// against reg.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	r := &PrometheusRecorder{
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of flush operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		flushOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_ops_total",
			Help:      "Count of persister operations committed by flush, by kind.",
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting to be dispatched by the session task queue.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Count of session tasks dispatched, by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(r.flushDuration, r.flushOps, r.queueDepth, r.dispatched)
	return r
}

func (r *PrometheusRecorder) ObserveFlush(durationSeconds float64, inserts, updates, deletes int) {
	r.flushDuration.Observe(durationSeconds)
	r.flushOps.WithLabelValues("insert").Add(float64(inserts))
	r.flushOps.WithLabelValues("update").Add(float64(updates))
	r.flushOps.WithLabelValues("delete").Add(float64(deletes))
}

func (r *PrometheusRecorder) ObserveQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

func (r *PrometheusRecorder) ObserveTaskDispatch(action string) {
	r.dispatched.WithLabelValues(action).Inc()
}
