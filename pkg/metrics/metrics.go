package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoanTransitions counts loan status changes by source and target status.
	LoanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loandesk_loan_transitions_total",
			Help: "Total number of loan status transitions",
		},
		[]string{"from", "to"},
	)

	// Notifications counts delivery attempts by template type, channel and result (sent|failed).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loandesk_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"type", "channel", "status"},
	)

	// SweepDuration measures how long each scheduled sweep takes.
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loandesk_sweep_duration_seconds",
			Help:    "Duration of scheduled notification sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loandesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RecordTransition increments the transition counter.
func RecordTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	LoanTransitions.WithLabelValues(from, to).Inc()
}
