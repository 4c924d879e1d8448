// Package metrics registers the Prometheus collectors served on /metrics.
// Infrastructure collectors (HTTP, cache, rate limits, database) live here;
// tracking and content collectors live in application.go.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geoaware"

// Metrics groups the collectors shared by the API server and the content repository
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSize       *prometheus.HistogramVec
	HTTPResponseSize      *prometheus.HistogramVec
	HTTPActiveConnections *prometheus.GaugeVec

	// Labelled by cache name, e.g. the analytics report cache.
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec
	CacheEvictionsTotal    *prometheus.CounterVec

	RateLimitExceededTotal *prometheus.CounterVec

	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseConnectionsOpen *prometheus.GaugeVec

	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// sizeBuckets spans 100 B to 100 MB, which covers JSON bodies and content uploads
var sizeBuckets = prometheus.ExponentialBuckets(100, 10, 7)

// Initialize registers the collectors with the default registry on first call
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "http",
				Name: "requests_total",
				Help: "Requests served, by route template and status",
			}, []string{"method", "path", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "http",
				Name:    "request_duration_seconds",
				Help:    "Time to serve a request",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
			HTTPRequestSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "http",
				Name:    "request_size_bytes",
				Help:    "Declared request body size",
				Buckets: sizeBuckets,
			}, []string{"method", "path"}),
			HTTPResponseSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "http",
				Name:    "response_size_bytes",
				Help:    "Bytes written in the response body",
				Buckets: sizeBuckets,
			}, []string{"method", "path", "status"}),
			HTTPActiveConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "http",
				Name: "in_flight_requests",
				Help: "Requests currently being served",
			}, []string{"method", "path"}),

			CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "cache",
				Name: "hits_total",
				Help: "Lookups answered from Redis",
			}, []string{"cache_name"}),
			CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "cache",
				Name: "misses_total",
				Help: "Lookups that fell through to a recompute",
			}, []string{"cache_name"}),
			CacheOperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "cache",
				Name:    "operation_duration_seconds",
				Help:    "Redis round trip per cache operation",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			}, []string{"operation", "cache_name"}),
			CacheEvictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "cache",
				Name: "invalidations_total",
				Help: "Keys dropped because the underlying data changed",
			}, []string{"cache_name"}),

			RateLimitExceededTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "ratelimit",
				Name: "rejected_total",
				Help: "Requests answered 429",
			}, []string{"endpoint", "method"}),

			DatabaseQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "database",
				Name:    "query_duration_seconds",
				Help:    "GORM statement latency",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"query_type", "table"}),
			DatabaseQueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "database",
				Name: "queries_total",
				Help: "GORM statements, by outcome",
			}, []string{"query_type", "table", "status"}),
			DatabaseConnectionsOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "database",
				Name: "connections_open",
				Help: "Open connections in the sql.DB pool",
			}, []string{"database"}),

			ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "API errors, by error code",
			}, []string{"error_type", "endpoint"}),
		}
	})
	return instance
}

// Get returns the registered collectors
func Get() *Metrics {
	return Initialize()
}
