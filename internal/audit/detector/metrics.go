package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for violation detection.
type Metrics struct {
	ViolationsRaised prometheus.Counter
	BreachesDetected prometheus.Counter
}

// NewMetrics registers and returns the detector metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ViolationsRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_violations_raised_total",
			Help: "Total number of compliance violations raised",
		}),
		BreachesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starline_audit_breaches_detected_total",
			Help: "Total number of breach escalations",
		}),
	}
}
