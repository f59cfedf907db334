package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the login module.
type Metrics struct {
	// Initiation outcomes: created, not_enrolled, not_found, conflict, error
	Initiations *prometheus.CounterVec

	// Completion decisions: verified, rejected, manual_review, failed, expired, error
	Completions *prometheus.CounterVec

	// Completions accepted while the provider still reported the operation
	// pending or unknown. Security-relevant; should stay near zero.
	UnverifiedCompletions prometheus.Counter

	// End-to-end completion latency including proof validation
	CompleteLatency prometheus.Histogram

	// Token refreshes
	Refreshes *prometheus.CounterVec
}

// New creates a new Metrics instance with all login metrics registered.
func New() *Metrics {
	return &Metrics{
		Initiations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_login_initiations_total",
			Help: "Total login initiation attempts by outcome",
		}, []string{"outcome"}),

		Completions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_login_completions_total",
			Help: "Total login completion decisions by outcome",
		}, []string{"outcome"}),

		UnverifiedCompletions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verigate_login_unverified_completions_total",
			Help: "Completions accepted on caller assertion while the provider reported the operation pending or unknown",
		}),

		CompleteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_login_complete_duration_seconds",
			Help:    "Duration of login completion including proof retrieval and validation",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		Refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_token_refreshes_total",
			Help: "Total token refresh attempts by outcome",
		}, []string{"outcome"}),
	}
}

// IncrementInitiation records a login initiation outcome.
func (m *Metrics) IncrementInitiation(outcome string) {
	if m != nil {
		m.Initiations.WithLabelValues(outcome).Inc()
	}
}

// IncrementCompletion records a login completion decision.
func (m *Metrics) IncrementCompletion(outcome string) {
	if m != nil {
		m.Completions.WithLabelValues(outcome).Inc()
	}
}

// IncrementUnverifiedCompletion records a completion accepted on caller
// assertion alone.
func (m *Metrics) IncrementUnverifiedCompletion() {
	if m != nil {
		m.UnverifiedCompletions.Inc()
	}
}

// ObserveCompleteLatency records the duration of a completion attempt.
func (m *Metrics) ObserveCompleteLatency(d time.Duration) {
	if m != nil {
		m.CompleteLatency.Observe(d.Seconds())
	}
}

// IncrementRefresh records a token refresh outcome.
func (m *Metrics) IncrementRefresh(outcome string) {
	if m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}
