// Package metrics exposes the Prometheus scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler for the default registry.
// Component metrics register themselves via promauto at construction.
func Handler() http.Handler {
	return promhttp.Handler()
}
