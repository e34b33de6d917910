// Package metrics provides Prometheus instrumentation for scans and the HTTP
// API.
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
	// ScansTotal counts scans by outcome ("ok" or "error").
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempedge_scans_total",
		Help: "Total number of scans run",
	}, []string{"outcome"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tempedge_scan_duration_seconds",
		Help:    "Scan duration in seconds",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
	})

	MarketsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempedge_markets_discovered",
		Help: "Temperature markets parsed in the latest scan",
	})

	ForecastsFetched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempedge_forecasts",
		Help: "Daily forecasts available in the latest scan",
	})

	// Opportunities tracks the latest scan's opportunities by city.
	Opportunities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tempedge_opportunities",
		Help: "Opportunities found in the latest scan",
	}, []string{"city"})

	BestEdge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempedge_best_edge",
		Help: "Largest edge found in the latest scan",
	})

	ForecastErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempedge_forecast_errors_total",
		Help: "Cities skipped because their forecast failed",
	})

	StalePrices = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempedge_stale_prices_total",
		Help: "Bucket prices that could not be refreshed",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempedge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tempedge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
