// Package metrics provides Prometheus instrumentation for the wagering engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GamesCreated counts pot games created.
	GamesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neontrill_games_created_total",
		Help: "Total pot games created",
	})

	// GamesSettled counts games settled with a winner.
	GamesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neontrill_games_settled_total",
		Help: "Total pot games settled",
	})

	// JoinsRejected counts join attempts refused, by reason.
	JoinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neontrill_joins_rejected_total",
		Help: "Join attempts rejected",
	}, []string{"reason"})

	// DrawsTotal counts provably-fair roll draws.
	DrawsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neontrill_draws_total",
		Help: "Total provably-fair draws evaluated",
	})

	// WebSocketClients tracks connected realtime clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neontrill_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neontrill_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neontrill_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
