// Package metrics provides Prometheus instrumentation for the verification
// service.
//
// It pre-defines the HTTP metrics every deployment needs plus the
// domain-level counters the operators actually watch: verdict counts,
// signature check outcomes, and ledger call latency.
//
// Wire it up once in internal/server:
//
//	r.Use(metrics.Middleware())
//	r.Get("/metrics", "metrics", metrics.Handler())
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ─────────────────────────────────────────────
// Built-in HTTP metrics
// ─────────────────────────────────────────────

var (
	// RequestDuration tracks how long each HTTP request takes,
	// broken down by method, route path, and status code.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veritas",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts all HTTP requests.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// RequestInFlight tracks how many requests are currently being served.
	RequestInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being served.",
	})
)

// ─────────────────────────────────────────────
// Verification metrics
// ─────────────────────────────────────────────

var (
	// Verifications counts classified bundles by verdict.
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Subsystem: "engine",
			Name:      "verifications_total",
			Help:      "Total bundle verifications by verdict.",
		},
		[]string{"verdict"}, // AUTHENTIC | TAMPERED | UNAUTHORIZED_RETAILER | NOT_FOUND | MALFORMED
	)

	// SignatureChecks counts individual signature verifications.
	SignatureChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Subsystem: "engine",
			Name:      "signature_checks_total",
			Help:      "Total signature verifications by outcome.",
		},
		[]string{"result"}, // "valid" | "invalid"
	)

	// LedgerCallDuration tracks ledger gateway latency per operation.
	LedgerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veritas",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Duration of ledger gateway calls in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .5, 1, 2.5},
		},
		[]string{"operation"}, // "get_product" | "get_history" | "create" | "append" | "mark_sold"
	)

	// LedgerProducts is the last observed product count on the ledger.
	// Refreshed by a scheduled poll, so it can lag by up to a minute.
	LedgerProducts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "veritas",
		Subsystem: "ledger",
		Name:      "products",
		Help:      "Number of products recorded on the ledger.",
	})

	// CacheHits / CacheMisses track verdict cache effectiveness.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits.",
		},
		[]string{"kind"}, // "verdict" | "product"
	)
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses.",
		},
		[]string{"kind"},
	)
)

// ─────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────

// DefaultRegistry is the Prometheus registry used by the service.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		RequestDuration,
		RequestTotal,
		RequestInFlight,
		Verifications,
		SignatureChecks,
		LedgerCallDuration,
		LedgerProducts,
		CacheHits,
		CacheMisses,
	)
}

// Register adds a prometheus.Collector to the service registry.
func Register(c prometheus.Collector) error {
	return DefaultRegistry.Register(c)
}

// MustRegister panics if registration fails.
func MustRegister(c ...prometheus.Collector) {
	DefaultRegistry.MustRegister(c...)
}

// ─────────────────────────────────────────────
// HTTP middleware
// ─────────────────────────────────────────────

// responseRecorder wraps http.ResponseWriter to capture status code and size.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// Middleware records duration, total count and in-flight gauge for every
// request.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path // raw path; normalize in high-cardinality APIs

			RequestInFlight.Inc()
			defer RequestInFlight.Dec()

			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			status := strconv.Itoa(rr.status)
			RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			RequestTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// ─────────────────────────────────────────────
// /metrics endpoint handler
// ─────────────────────────────────────────────

// Handler exposes the Prometheus metrics page. Mount it on GET /metrics.
func Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return h.ServeHTTP
}

// ─────────────────────────────────────────────
// Helpers for app code
// ─────────────────────────────────────────────

// RecordVerdict bumps the verdict counter.
func RecordVerdict(verdict string) {
	Verifications.WithLabelValues(verdict).Inc()
}

// RecordSignatureCheck records one signature verification outcome.
func RecordSignatureCheck(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	SignatureChecks.WithLabelValues(result).Inc()
}

// SetLedgerProducts updates the product count gauge.
func SetLedgerProducts(n uint64) {
	LedgerProducts.Set(float64(n))
}

// ObserveLedgerCall records a ledger gateway call with a simple timer:
//
//	defer metrics.ObserveLedgerCall("get_product", time.Now())
func ObserveLedgerCall(operation string, start time.Time) {
	LedgerCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
