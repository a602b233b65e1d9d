package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics tracks the HTTP query surface.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
	streams   prometheus.Gauge
}

var (
	apiOnce     sync.Once
	apiRegistry *APIMetrics
)

func API() *APIMetrics {
	apiOnce.Do(func() {
		apiRegistry = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flightsurety_api_requests_total",
				Help: "HTTP requests served segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "flightsurety_api_request_duration_seconds",
				Help:    "Latency distribution for HTTP handlers.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flightsurety_api_throttled_total",
				Help: "Requests rejected by the rate limiter segmented by route.",
			}, []string{"route"}),
			streams: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "flightsurety_api_event_streams",
				Help: "Open websocket event streams.",
			}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.latency,
			apiRegistry.throttled,
			apiRegistry.streams,
		)
	})
	return apiRegistry
}

func (m *APIMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *APIMetrics) IncThrottled(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttled.WithLabelValues(route).Inc()
}

func (m *APIMetrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streams.Inc()
}

func (m *APIMetrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streams.Dec()
}
