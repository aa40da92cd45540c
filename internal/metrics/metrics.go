// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeAuthRejected   = "auth_rejected"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
	OutcomeStreamRejected = "stream_rejected"
	OutcomeOther          = "error"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// Attempts counts backend attempts per category, backend and outcome
	Attempts *prometheus.CounterVec

	// AttemptLatency tracks time to verdict per backend
	AttemptLatency *prometheus.HistogramVec

	// PinChanges counts sticky pins set and cleared per category
	PinChanges *prometheus.CounterVec

	// Exhausted counts routes that ran out of candidates
	Exhausted *prometheus.CounterVec

	// RetrySleeps counts inter-round sleeps per category
	RetrySleeps *prometheus.CounterVec

	// PromptTokens tracks estimated prompt size per category
	PromptTokens *prometheus.HistogramVec

	// StateErrors counts swallowed shared-state failures per operation
	StateErrors *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the gateway collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchway_backend_attempts_total",
				Help: "Total number of backend attempts",
			},
			[]string{"category", "backend", "outcome"},
		),
		AttemptLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latchway_backend_attempt_seconds",
				Help:    "Time from dispatch to classification verdict in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		PinChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchway_pin_changes_total",
				Help: "Total number of sticky pin changes",
			},
			[]string{"category", "action"},
		),
		Exhausted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchway_routes_exhausted_total",
				Help: "Total number of requests for which no backend responded",
			},
			[]string{"category"},
		),
		RetrySleeps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchway_retry_sleeps_total",
				Help: "Total number of sleeps between retry rounds",
			},
			[]string{"category"},
		),
		PromptTokens: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latchway_prompt_tokens",
				Help:    "Estimated prompt tokens per request",
				Buckets: prometheus.ExponentialBuckets(16, 4, 8),
			},
			[]string{"category"},
		),
		StateErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchway_state_errors_total",
				Help: "Total number of shared routing state failures",
			},
			[]string{"operation"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
