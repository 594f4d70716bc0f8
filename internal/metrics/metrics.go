// Package metrics provides Prometheus metrics for the library server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Tree sync metrics
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_sync_runs_total",
			Help: "Total number of tree rebuild cycles",
		},
		[]string{"result"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_sync_duration_seconds",
			Help:    "Time to fetch the listing and rebuild the tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_tree_size",
			Help: "Number of documents in the published tree snapshot",
		},
	)

	listingPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_listing_pages_fetched_total",
			Help: "Total listing API pages fetched",
		},
	)

	// Content cache metrics
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_cache_hits_total",
			Help: "Total content cache hits",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_cache_misses_total",
			Help: "Total content cache misses",
		},
	)

	purgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_cache_purges_total",
			Help: "Cache purge attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordSyncRun records one rebuild cycle.
func RecordSyncRun(duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	syncRunsTotal.WithLabelValues(result).Inc()
	syncDuration.Observe(duration.Seconds())
}

// SetTreeSize updates the published tree size gauge.
func SetTreeSize(n int64) {
	treeSize.Set(float64(n))
}

// RecordListingPage records one fetched listing page.
func RecordListingPage() {
	listingPagesFetched.Inc()
}

// RecordCacheHit records a content cache hit.
func RecordCacheHit() {
	cacheHitsTotal.Inc()
}

// RecordCacheMiss records a content cache miss.
func RecordCacheMiss() {
	cacheMissesTotal.Inc()
}

// RecordPurge records a purge attempt by outcome
// (purged, locked, noop, rejected, duplicate, error).
func RecordPurge(outcome string) {
	purgesTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
