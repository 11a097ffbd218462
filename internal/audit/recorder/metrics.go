package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit recorder.
type Metrics struct {
	Recorded        prometheus.Counter
	Skipped         prometheus.Counter
	Sampled         prometheus.Counter
	PersistFailures prometheus.Counter
	QueueDropped    prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers and returns the recorder metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_recorded_total",
			Help: "Total number of audit records persisted",
		}),
		Skipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_skipped_total",
			Help: "Total number of events skipped by tenant logging settings",
		}),
		Sampled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_sampled_out_total",
			Help: "Total number of eligible events dropped by sampling",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_persist_failures_total",
			Help: "Total number of audit record persistence failures",
		}),
		QueueDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_queue_dropped_total",
			Help: "Total number of records dropped from the post-persist queue",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "starline_audit_persist_duration_seconds",
			Help:    "Audit record persistence latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
