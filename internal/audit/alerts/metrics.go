package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for alert delivery.
type Metrics struct {
	Sent         prometheus.Counter
	Failed       prometheus.Counter
	QueueDropped prometheus.Counter
}

// NewMetrics registers and returns the alert metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Sent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_alerts_sent_total",
			Help: "Total number of alert emails delivered",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_alerts_failed_total",
			Help: "Total number of alert deliveries that dead-lettered",
		}),
		QueueDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_alerts_queue_dropped_total",
			Help: "Total number of alerts dropped because the queue was full",
		}),
	}
}
