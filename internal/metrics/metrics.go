// Package metrics holds the Prometheus collectors exported on /api/metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pathnote"

var (
	Registry = prometheus.NewRegistry()

	// CacheLookups counts note cache reads by result: hit, miss or error.
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Note cache lookups by result.",
	}, []string{"result"})

	// CacheErrors counts failed cache operations by op: get, put, delete.
	CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Failed cache operations.",
	}, []string{"op"})

	CacheFills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "fills_total",
		Help:      "Note views written to the cache after a miss.",
	})

	CacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Cache entries deleted after a write.",
	})

	ViewIncrementFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notes",
		Name:      "view_increment_failures_total",
		Help:      "Background view count increments that failed.",
	})

	// NoteWrites counts note mutations by kind. Public writes are save, lock
	// and unlock; admin writes are create, update, delete and import.
	NoteWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notes",
		Name:      "writes_total",
		Help:      "Note mutations by kind.",
	}, []string{"kind"})

	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CacheLookups,
		CacheErrors,
		CacheFills,
		CacheInvalidations,
		ViewIncrementFailures,
		NoteWrites,
		HTTPRequests,
		RateLimited,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveRequest records one served request.
func ObserveRequest(route, method string, code int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
