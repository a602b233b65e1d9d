package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flightsurety"

// SuretyMetrics tracks the entry points of the insurance node.
type SuretyMetrics struct {
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	responses *prometheus.CounterVec
	finalized *prometheus.CounterVec
	credited  prometheus.Counter
}

// OracleAgentMetrics tracks the off-chain oracle agents.
type OracleAgentMetrics struct {
	registrations *prometheus.CounterVec
	attempts      prometheus.Counter
	submissions   *prometheus.CounterVec
	active        prometheus.Gauge
}

var (
	suretyOnce     sync.Once
	suretyRegistry *SuretyMetrics

	agentOnce     sync.Once
	agentRegistry *OracleAgentMetrics
)

// Surety returns the lazily-initialised node metrics registry.
func Surety() *SuretyMetrics {
	suretyOnce.Do(func() {
		suretyRegistry = &SuretyMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "calls_total",
				Help:      "Mutating node calls segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for mutating node calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			responses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "responses_total",
				Help:      "Oracle status responses segmented by outcome.",
			}, []string{"outcome"}),
			finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flight",
				Name:      "finalized_total",
				Help:      "Flights finalized segmented by status code.",
			}, []string{"status"}),
			credited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "insurance",
				Name:      "policies_credited_total",
				Help:      "Policies credited after an airline-fault delay.",
			}),
		}
		prometheus.MustRegister(
			suretyRegistry.calls,
			suretyRegistry.latency,
			suretyRegistry.responses,
			suretyRegistry.finalized,
			suretyRegistry.credited,
		)
	})
	return suretyRegistry
}

// ObserveCall records the outcome of a mutating call.
func (m *SuretyMetrics) ObserveCall(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	method = label(method)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordResponse counts an oracle response. Outcomes are stable strings such
// as "counted", "duplicate", "closed" or "rejected".
func (m *SuretyMetrics) RecordResponse(outcome string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(label(outcome)).Inc()
}

// RecordFinalized counts a flight finalized with the supplied status label.
func (m *SuretyMetrics) RecordFinalized(status string) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(label(status)).Inc()
}

// RecordCredited adds n credited policies.
func (m *SuretyMetrics) RecordCredited(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.credited.Add(float64(n))
}

// OracleAgents returns the lazily-initialised oracle agent metrics registry.
func OracleAgents() *OracleAgentMetrics {
	agentOnce.Do(func() {
		agentRegistry = &OracleAgentMetrics{
			registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracled",
				Name:      "registrations_total",
				Help:      "Oracle agent registrations segmented by outcome.",
			}, []string{"outcome"}),
			attempts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracled",
				Name:      "registration_attempts_total",
				Help:      "Registration attempts including retries.",
			}),
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracled",
				Name:      "submissions_total",
				Help:      "Status submissions segmented by outcome.",
			}, []string{"outcome"}),
			active: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "oracled",
				Name:      "agents_active",
				Help:      "Registered agents currently listening for requests.",
			}),
		}
		prometheus.MustRegister(
			agentRegistry.registrations,
			agentRegistry.attempts,
			agentRegistry.submissions,
			agentRegistry.active,
		)
	})
	return agentRegistry
}

// RecordRegistration counts a finished registration ("registered", "existing"
// or "failed").
func (m *OracleAgentMetrics) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(label(outcome)).Inc()
}

// RecordAttempt counts a single registration attempt.
func (m *OracleAgentMetrics) RecordAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

// RecordSubmission counts a status submission by outcome.
func (m *OracleAgentMetrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(label(outcome)).Inc()
}

// SetActive reports the number of listening agents.
func (m *OracleAgentMetrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
