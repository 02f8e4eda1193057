// Package metrics provides Prometheus instrumentation for the simulator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts trade requests by outcome.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksim_trades_total",
		Help: "Trade requests by outcome",
	}, []string{"outcome"})

	// SharesTraded counts shares moved by resolved fills.
	SharesTraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stocksim_shares_traded_total",
		Help: "Shares transferred by resolved fills",
	})

	// OffersExpired counts offers evicted by TTL, by side.
	OffersExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksim_offers_expired_total",
		Help: "Offers expired and refunded",
	}, []string{"side"})

	// OrderFailures counts requests skipped because of an error.
	OrderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksim_order_failures_total",
		Help: "Requests skipped by error kind",
	}, []string{"reason"})

	// TickDuration tracks the wall time of one simulation tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stocksim_tick_duration_seconds",
		Help:    "Duration of one simulation tick in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// OpenOffers tracks the offers resting on the trade book, by side.
	OpenOffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stocksim_open_offers",
		Help: "Offers resting on the trade book",
	}, []string{"side"})

	// IssuanceLotsAllocated counts lots allocated by issuance windows.
	IssuanceLotsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stocksim_issuance_allocated_lots_total",
		Help: "Lots allocated by finalized issuance windows",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocksim_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// The route pattern keeps the path label's cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
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
