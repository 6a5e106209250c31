// Package metrics exposes the Prometheus collectors of the discovery pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliatescout_job_transitions_total",
			Help: "Search job status transitions won, by target status",
		},
		[]string{"status"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliatescout_provider_requests_total",
			Help: "Requests sent to the scraping provider",
		},
		[]string{"op", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affiliatescout_provider_request_duration_seconds",
			Help:    "Duration of scraping provider requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60, 120},
		},
		[]string{"op"},
	)

	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliatescout_enrichment_failures_total",
			Help: "Enrichment batches that failed, by platform",
		},
		[]string{"platform"},
	)

	EnrichmentCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliatescout_enrichment_cache_total",
			Help: "Enrichment cache lookups, by platform and result",
		},
		[]string{"platform", "result"},
	)

	FilterDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliatescout_filter_drops_total",
			Help: "Results dropped by a filter stage",
		},
		[]string{"chain", "stage"},
	)

	CreditsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "affiliatescout_credits_consumed_total",
		Help: "Usage credits debited for completed jobs",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
