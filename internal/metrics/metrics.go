// Package metrics exposes Prometheus collectors for the interview
// platform backend, grounded on the Registry-plus-InstrumentHandler shape
// of the teacher's pkg/metrics/metrics.go, narrowed to this domain's own
// signals: HTTP traffic, anti-cheat strikes, and AI proxy fallback rate.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds this service's Prometheus collectors, kept separate from
// the default global registry the way the teacher's own pkg/metrics does.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interview_platform",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled, by method/route/status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "interview_platform",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	strikesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interview_platform",
			Subsystem: "anticheat",
			Name:      "strikes_total",
			Help:      "Anti-cheat strikes recorded, by event type/severity/action.",
		},
		[]string{"type", "severity", "action"},
	)

	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interview_platform",
			Subsystem: "aiproxy",
			Name:      "calls_total",
			Help:      "AI Proxy calls, by operation and whether the fallback path served it.",
		},
		[]string{"operation", "fallback"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "interview_platform",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of sessions in the Active state.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		strikesTotal,
		aiCallsTotal,
		activeSessions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Instrument wraps a handler with request-count and duration observation,
// labeled by a caller-supplied route template (so path variables don't
// explode cardinality) rather than the raw request path.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordStrike increments the strike counter for one anti-cheat policy hit.
func RecordStrike(eventType, severity, action string) {
	strikesTotal.WithLabelValues(eventType, severity, action).Inc()
}

// RecordAICall increments the AI proxy call counter, tagging whether the
// deterministic fallback served the request (spec §4.5 fallback-
// transparency: callers never fail because the fallback fired, but
// operators still want to see when it does).
func RecordAICall(operation string, fallback bool) {
	aiCallsTotal.WithLabelValues(operation, strconv.FormatBool(fallback)).Inc()
}

// SetActiveSessions sets the current Active-session gauge outright.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// ActiveSessionsInc / ActiveSessionsDec adjust the gauge as sessions move
// in and out of the Active state.
func ActiveSessionsInc() { activeSessions.Inc() }
func ActiveSessionsDec() { activeSessions.Dec() }
