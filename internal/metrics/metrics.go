// Package metrics exposes the Prometheus instrumentation for the
// localization service: tile cache behavior, localization latencies and the
// HTTP request middleware.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rugged_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rugged_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tileCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rugged_tile_cache_hits_total",
		Help: "Total number of tile cache hits.",
	})

	tileCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rugged_tile_cache_misses_total",
		Help: "Total number of tile cache misses (tile updater invocations).",
	})

	tileCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rugged_tile_cache_evictions_total",
		Help: "Total number of tiles evicted from the cache.",
	})

	tileCacheTiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rugged_tile_cache_tiles",
		Help: "Number of tiles currently held in the cache.",
	})

	localizationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rugged_localization_duration_seconds",
			Help:    "Localization call duration in seconds.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(tileCacheHits)
	prometheus.MustRegister(tileCacheMisses)
	prometheus.MustRegister(tileCacheEvictions)
	prometheus.MustRegister(tileCacheTiles)
	prometheus.MustRegister(localizationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncTileCacheHits records a tile cache hit.
func IncTileCacheHits() { tileCacheHits.Inc() }

// IncTileCacheMisses records a tile cache miss.
func IncTileCacheMisses() { tileCacheMisses.Inc() }

// IncTileCacheEvictions records a tile eviction.
func IncTileCacheEvictions() { tileCacheEvictions.Inc() }

// SetTileCacheTiles publishes the current number of live tiles.
func SetTileCacheTiles(n int) { tileCacheTiles.Set(float64(n)) }

// RecordLocalization records the duration of a direct or inverse
// localization call.
func RecordLocalization(kind string, d time.Duration) {
	localizationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so event streams keep working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}
