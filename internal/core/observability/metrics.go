package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu sync.RWMutex

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamLatencySeconds     *prometheus.HistogramVec
	resolveResults             *prometheus.CounterVec
	renderTotal                *prometheus.CounterVec
	renderPolygons             prometheus.Histogram
	storeOpDurationSeconds     *prometheus.HistogramVec
	lookupEvents               *prometheus.CounterVec
	buildInfo                  *prometheus.GaugeVec
)

func init() {
	Init(nil, false)
}

// Init (re)creates the collectors and registers them on reg when enabled.
// With enabled=false the collectors still work but are not exported.
func Init(reg prometheus.Registerer, enabled bool) {
	mu.Lock()
	defer mu.Unlock()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)
	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)
	resolveResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_resolve_total",
			Help: "Parcel resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	renderTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_render_total",
			Help: "Rendered maps by result.",
		},
		[]string{"result"},
	)
	renderPolygons = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "map_render_polygons",
			Help:    "Number of polygons drawn per rendered map.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	storeOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_store_op_duration_seconds",
			Help:    "Duration of snapshot store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op", "result"},
	)
	lookupEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_events_total",
			Help: "Lookup events by outcome.",
		},
		[]string{"outcome"},
	)
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parcelmap_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	if enabled && reg != nil {
		reg.MustRegister(
			httpRequestsTotal,
			httpRequestDurationSeconds,
			upstreamLatencySeconds,
			resolveResults,
			renderTotal,
			renderPolygons,
			storeOpDurationSeconds,
			lookupEvents,
			buildInfo,
		)
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	mu.RLock()
	defer mu.RUnlock()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	mu.RLock()
	defer mu.RUnlock()
	upstreamLatencySeconds.WithLabelValues(upstream, result(err)).Observe(durationSeconds)
}

// outcome is one of found|none|ambiguous|error
func IncResolve(outcome string) {
	mu.RLock()
	defer mu.RUnlock()
	resolveResults.WithLabelValues(outcome).Inc()
}

func ObserveRender(polygons int, err error) {
	mu.RLock()
	defer mu.RUnlock()
	renderTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		renderPolygons.Observe(float64(polygons))
	}
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	mu.RLock()
	defer mu.RUnlock()
	storeOpDurationSeconds.WithLabelValues(op, result(err)).Observe(durationSeconds)
}

// outcome is one of queued|dropped|deduped|error
func IncLookupEvent(outcome string) {
	mu.RLock()
	defer mu.RUnlock()
	lookupEvents.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	mu.RLock()
	defer mu.RUnlock()
	buildInfo.WithLabelValues(version).Set(1)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
