// Package metrics exposes the Prometheus registry of the dog photo proxy
// and the HTTP instrumentation of its routes. Domain metrics are defined in
// their own packages (cache, client, photos) to avoid circular imports.
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

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dogproxy_http_requests_total",
		Help: "Total HTTP requests served by route, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dogproxy_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per chi route pattern, so
// /dog-photos/{id} is one series regardless of the id.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - dogproxy_cache_hits_total{backend} (Counter): Cache hits by backend (memory, redis, database)
//   - dogproxy_cache_misses_total{backend} (Counter): Cache misses, expired entries included
//   - dogproxy_cache_errors_total{operation} (Counter): Failed store operations
//
// Upstream Metrics (pkg/client):
//   - dogproxy_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - dogproxy_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - dogproxy_upstream_errors_total{class} (Counter): Errors by class (network, client, server, not_found, invalid_payload)
//
// Photo Metrics (pkg/photos):
//   - dogproxy_photo_views_total (Counter): Recorded photo views
//
// HTTP Metrics (this package):
//   - dogproxy_http_requests_total{route, method, status} (Counter)
//   - dogproxy_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(dogproxy_cache_hits_total[5m])) /
//   (sum(rate(dogproxy_cache_hits_total[5m])) + sum(rate(dogproxy_cache_misses_total[5m])))
//
//   # Upstream Error Rate
//   sum by (class) (rate(dogproxy_upstream_errors_total[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(dogproxy_upstream_request_duration_seconds_bucket[5m]))
