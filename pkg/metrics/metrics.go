package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scouting_transactions_total",
			Help: "Transactions appended to the log by kind and action",
		},
		[]string{"data_type", "action"},
	)

	BlobsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scouting_blobs_written_total",
			Help: "Blobs written to the content store",
		},
	)

	LiveEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scouting_live_entities",
			Help: "Live alt-keys by kind",
		},
		[]string{"data_type"},
	)

	// Sync metrics
	SyncPullsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scouting_sync_pulls_total",
			Help: "Pull iterations against the parent by outcome",
		},
		[]string{"outcome"},
	)

	SyncBlobsFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scouting_sync_blobs_fetched_total",
			Help: "Blobs transferred from the parent",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scouting_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scouting_api_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers all collectors with the default registry. Call once
// at startup.
func Register() {
	prometheus.MustRegister(
		TransactionsTotal,
		BlobsWrittenTotal,
		LiveEntities,
		SyncPullsTotal,
		SyncBlobsFetchedTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served HTTP request
func ObserveRequest(route, code string, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(route, code).Inc()
	APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
