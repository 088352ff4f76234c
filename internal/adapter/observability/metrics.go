package observability

import (
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every harness and twin collector. A dedicated registry keeps
// runtime collectors out of the textfile written at the end of a run.
var Registry = prometheus.NewRegistry()

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_requests_total",
			Help: "Total number of requests issued against the application under test",
		},
		[]string{"method", "route", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harness_request_duration_seconds",
			Help:    "Latency of requests issued against the application under test",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_steps_total",
			Help: "Scenario steps by outcome",
		},
		[]string{"scenario", "outcome"},
	)

	TwinHTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_http_requests_total",
			Help: "Total number of HTTP requests served by the application twin",
		},
		[]string{"route", "method", "status"},
	)
	TwinHTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"route", "method"},
	)
	TwinJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_jobs_total",
			Help: "Job status transitions performed by the application twin",
		},
		[]string{"status"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors once per process.
func InitMetrics() {
	initOnce.Do(func() {
		Registry.MustRegister(RequestsTotal)
		Registry.MustRegister(RequestDuration)
		Registry.MustRegister(StepsTotal)
		Registry.MustRegister(TwinHTTPRequestsTotal)
		Registry.MustRegister(TwinHTTPRequestDuration)
		Registry.MustRegister(TwinJobsTotal)
	})
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// RouteTemplate collapses numeric path segments so /job/42 and /job/43 share
// the /job/{id} label.
func RouteTemplate(path string) string {
	return numericSegment.ReplaceAllString(path, "/{id}$1")
}

// ObserveRequest records one client request. status 0 marks a transport failure.
func ObserveRequest(method, path string, status int, dur time.Duration) {
	route := RouteTemplate(path)
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(method, route, label).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}

// RecordStep counts a step outcome.
func RecordStep(scenario, outcome string) {
	StepsTotal.WithLabelValues(scenario, outcome).Inc()
}

// RecordTwinJob counts a job status transition in the twin.
func RecordTwinJob(status string) {
	TwinJobsTotal.WithLabelValues(status).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// HTTPMetricsMiddleware records Prometheus metrics for each twin request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = RouteTemplate(r.URL.Path)
		}
		status := ww.Status()
		TwinHTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		TwinHTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
