package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment module.
type Metrics struct {
	// Initiation outcomes: created, already_enrolled, conflict, error
	Initiations *prometheus.CounterVec

	// Terminal transitions observed by progress checks: completed, failed, expired
	Completions *prometheus.CounterVec

	// Progress check latency including the provider status call
	ProgressLatency prometheus.Histogram
}

// New creates a new Metrics instance with all enrollment metrics registered.
func New() *Metrics {
	return &Metrics{
		Initiations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_enrollment_initiations_total",
			Help: "Total enrollment initiation attempts by outcome",
		}, []string{"outcome"}),

		Completions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_enrollment_completions_total",
			Help: "Total enrollment terminal transitions by outcome",
		}, []string{"outcome"}),

		ProgressLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_enrollment_progress_check_duration_seconds",
			Help:    "Duration of enrollment progress checks",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementInitiation records an initiation outcome.
func (m *Metrics) IncrementInitiation(outcome string) {
	if m != nil {
		m.Initiations.WithLabelValues(outcome).Inc()
	}
}

// IncrementCompletion records a terminal transition outcome.
func (m *Metrics) IncrementCompletion(outcome string) {
	if m != nil {
		m.Completions.WithLabelValues(outcome).Inc()
	}
}

// ObserveProgressLatency records the duration of a progress check.
func (m *Metrics) ObserveProgressLatency(d time.Duration) {
	if m != nil {
		m.ProgressLatency.Observe(d.Seconds())
	}
}
