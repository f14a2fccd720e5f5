// Package metrics provides Prometheus metrics for the thumbnail service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuechentakt_media_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuechentakt_media_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	thumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuechentakt_media_thumbnails_total",
			Help: "Thumbnail lookups by cache status (HIT, MISS) and L1 source",
		},
		[]string{"status", "source"},
	)

	renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuechentakt_media_render_duration_seconds",
			Help:    "Time spent cropping, resizing and encoding one variant",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"fit"},
	)

	cacheWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kuechentakt_media_cache_write_failures_total",
			Help: "Rendered variants that could not be persisted to object storage",
		},
	)

	storageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuechentakt_media_storage_operations_total",
			Help: "Object storage operations by type and result",
		},
		[]string{"operation", "result"},
	)

	storageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuechentakt_media_storage_operation_duration_seconds",
			Help:    "Object storage operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	warmupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuechentakt_media_warmup_jobs_total",
			Help: "Thumbnail warm-up jobs by result",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordThumbnail counts a served thumbnail. source is "redis", "storage" or "render".
func RecordThumbnail(status, source string) {
	thumbnailsTotal.WithLabelValues(status, source).Inc()
}

func RecordRender(fit string, d time.Duration) {
	renderDuration.WithLabelValues(fit).Observe(d.Seconds())
}

func RecordCacheWriteFailure() {
	cacheWriteFailures.Inc()
}

// Storage operation results.
const (
	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// RecordStorageOperation records an object storage call. result is one of
// ResultSuccess, ResultNotFound or ResultError.
func RecordStorageOperation(op string, d time.Duration, result string) {
	storageOperations.WithLabelValues(op, result).Inc()
	storageDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordWarmup(result string) {
	warmupJobsTotal.WithLabelValues(result).Inc()
}
