package handlers

import (
	"net/http"

	"affiliatescout/internal/metrics"
)

// Metrics exposes the Prometheus registry.
func Metrics() http.Handler {
	return metrics.Handler()
}
