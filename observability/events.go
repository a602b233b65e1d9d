package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	archiveErrors prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events dropped because a subscriber buffer was full.",
			}, []string{"type"}),
			archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "archive_errors_total",
				Help:      "Failures persisting committed events to the archive.",
			}),
		}
		prometheus.MustRegister(
			eventRegistry.published,
			eventRegistry.dropped,
			eventRegistry.archiveErrors,
		)
	})
	return eventRegistry
}

// RecordPublished increments the counter for the supplied event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(label(eventType)).Inc()
}

// RecordDropped counts an event a slow subscriber missed.
func (m *eventMetrics) RecordDropped(eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(label(eventType)).Inc()
}

// RecordArchiveError counts a failed archive write.
func (m *eventMetrics) RecordArchiveError() {
	if m == nil {
		return
	}
	m.archiveErrors.Inc()
}
