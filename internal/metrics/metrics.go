// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutageTransitions counts committed lifecycle transitions.
	// Labels: event (create, approve, reject, cancel, start, complete, reschedule), status (resulting status)
	OutageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ioms",
		Subsystem: "outage",
		Name:      "transitions_total",
		Help:      "Total committed outage lifecycle transitions",
	}, []string{"event", "status"})

	// ConflictChecks counts conflict evaluations.
	// Labels: result (clear, conflict), policy (advisory, blocking)
	ConflictChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ioms",
		Subsystem: "outage",
		Name:      "conflict_checks_total",
		Help:      "Total outage conflict checks by result",
	}, []string{"result", "policy"})

	// NotificationDeliveries counts deliveries per sink.
	// Labels: sink (inapp, channels, kafka, realtime), status (ok, error, dropped)
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ioms",
		Subsystem: "notification",
		Name:      "deliveries_total",
		Help:      "Total notification deliveries by sink and status",
	}, []string{"sink", "status"})

	// RealtimeSessions tracks open realtime sessions.
	RealtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ioms",
		Subsystem: "realtime",
		Name:      "sessions",
		Help:      "Open realtime sessions",
	})

	// JobRuns counts scheduled job executions.
	// Labels: job, status (ok, error)
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ioms",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Total scheduled job runs",
	}, []string{"job", "status"})

	// JobDuration measures scheduled job run time.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ioms",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Scheduled job duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ioms",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Middleware records request latency labelled by the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}
