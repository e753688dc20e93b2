package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Optimizations counts optimization runs by outcome (ready, no_vehicles, infeasible, ...)
	Optimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planning_optimizations_total", Help: "Optimization runs by outcome."},
		[]string{"outcome"},
	)
	OptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "planning_optimize_duration_seconds", Help: "Wall time of a full optimization run.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}},
	)
	MatrixBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "distance_matrix_build_seconds", Help: "Time to build a distance matrix.", Buckets: prometheus.DefBuckets},
	)
	RouteDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "planning_route_distance_meters", Help: "Distance of committed routes.", Buckets: prometheus.ExponentialBuckets(500, 2, 10)},
	)
	// RateLimited counts requests rejected by the optimize rate limiter
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by rate limiting."},
	)
	// WebhookDeliveries counts outbound event deliveries by result (delivered, failed, dropped)
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Outbound webhook deliveries by result."},
		[]string{"result"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Optimizations, OptimizeDuration, MatrixBuildDuration, RouteDistance, RateLimited, WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// RegisterGaugeFunc exposes a value sampled at scrape time, such as the
// road index's coordinate resolution count.
func RegisterGaugeFunc(name, help string, fn func() float64) error {
	return Registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}
