package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ebttikar/oip-assistant/internal/router"
)

// serverMetrics holds the Prometheus collectors for one server instance.
// Per-instance registration keeps tests independent of each other.
type serverMetrics struct {
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	activeStreams prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func newServerMetrics(reg *prometheus.Registry, sessionCount func() int) *serverMetrics {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "oipa",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(sessionCount()) })
	return &serverMetrics{
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oipa",
			Subsystem: "turn",
			Name:      "requests_total",
			Help:      "Conversational turns processed, by intent and outcome.",
		}, []string{"intent", "outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oipa",
			Subsystem: "turn",
			Name:      "duration_seconds",
			Help:      "End-to-end turn latency, by intent.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"intent"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "oipa",
			Subsystem: "turn",
			Name:      "active_streams",
			Help:      "SSE streams currently open.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oipa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, path and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oipa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// observeTurn records one completed turn.
func (m *serverMetrics) observeTurn(intent router.Intent, err error, d time.Duration) {
	label := string(intent)
	if label == "" {
		label = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.turnsTotal.WithLabelValues(label, outcome).Inc()
	m.turnDuration.WithLabelValues(label).Observe(d.Seconds())
}

// metricsMiddleware records request counts and latency. Path labels use
// the route pattern, not the raw URL, to keep cardinality bounded.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		s.metrics.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
