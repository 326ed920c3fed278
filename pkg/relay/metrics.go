package relay

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

func newMetricsRegistry() *metricsRegistry {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_relay_requests_total",
		Help: "Relayed requests by route and upstream status code",
	}, []string{"route", "code"})

	upstreamErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_relay_upstream_errors_total",
		Help: "Requests that could not reach the upstream API",
	}, []string{"route"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fusion_relay_upstream_duration_seconds",
		Help:    "Upstream round trip latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	r := prometheus.NewRegistry()
	r.MustRegister(requests, upstreamErrors, duration)

	return &metricsRegistry{
		registry:         r,
		requestsTotal:    requests,
		upstreamErrors:   upstreamErrors,
		upstreamDuration: duration,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) observe(route string, code int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.upstreamDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *metricsRegistry) incUpstreamError(route string) {
	m.upstreamErrors.WithLabelValues(route).Inc()
}
