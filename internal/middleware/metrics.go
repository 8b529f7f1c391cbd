package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bindiff",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bindiff",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bindiff",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests being served.",
		},
	)
	comparisons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bindiff",
			Subsystem: "pipeline",
			Name:      "comparisons_total",
			Help:      "Finished comparisons by status and failed step.",
		},
		[]string{"status", "step"},
	)
	comparisonsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bindiff",
			Subsystem: "pipeline",
			Name:      "comparisons_running",
			Help:      "Comparisons currently executing.",
		},
	)
	comparisonDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bindiff",
			Subsystem: "pipeline",
			Name:      "comparison_duration_seconds",
			Help:      "Wall time of a full comparison.",
			// IDA runs take minutes
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, httpInFlight,
			comparisons, comparisonsRunning, comparisonDuration)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// ComparisonStarted must be paired with ComparisonFinished.
func ComparisonStarted() {
	RegisterMetrics()
	comparisonsRunning.Inc()
}

func ComparisonFinished(status, failedStep string, duration time.Duration) {
	RegisterMetrics()
	comparisonsRunning.Dec()
	if failedStep == "" {
		failedStep = "none"
	}
	comparisons.WithLabelValues(status, failedStep).Inc()
	comparisonDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// MetricsMiddleware tracks request metrics. The path label is the chi route
// pattern so ids do not blow up cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	RegisterMetrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(wrapped, r)

		RecordHTTPRequest(r.Method, routePattern(r), wrapped.statusCode, time.Since(start))
	})
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
