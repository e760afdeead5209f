package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TxSubmitted counts transactions that made it past broadcast, by kind.
	TxSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractea_tx_submitted_total",
			Help: "Total transactions broadcast to the network, by kind.",
		},
		[]string{"kind"},
	)

	// TxConfirmed counts transactions confirmed with a successful receipt.
	TxConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractea_tx_confirmed_total",
			Help: "Total transactions confirmed on chain, by kind.",
		},
		[]string{"kind"},
	)

	// TxFailed counts transactions whose receipt reported failure.
	TxFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractea_tx_failed_total",
			Help: "Total transactions that reverted on chain, by kind.",
		},
		[]string{"kind"},
	)

	// TxTimeouts counts confirmation waits that exceeded the configured bound.
	TxTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fractea_tx_confirm_timeouts_total",
			Help: "Total confirmation waits that timed out with the transaction still pending.",
		},
	)

	// EstimateFallbacks counts gas estimates served from the static table.
	EstimateFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractea_fee_estimate_fallbacks_total",
			Help: "Total fee estimates that fell back to the per-class constant.",
		},
		[]string{"class"},
	)

	// ReconciliationRuns counts per-owner reconciliation syncs.
	ReconciliationRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fractea_reconciliation_runs_total",
			Help: "Total per-owner reconciliation syncs executed.",
		},
	)

	// ReconciliationDiscrepancies counts syncs where the cache disagreed with
	// the authoritative chain state.
	ReconciliationDiscrepancies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fractea_reconciliation_discrepancies_total",
			Help: "Total reconciliation syncs that found cached state diverging from chain state.",
		},
	)

	// SubmissionDuration observes end-to-end pipeline latency per kind.
	SubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fractea_submission_duration_seconds",
			Help:    "End-to-end duration of submission pipeline operations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)
)

// MustRegisterMetrics registers all engine collectors with the default registry.
// Call once at startup; double registration panics.
func MustRegisterMetrics() {
	prometheus.MustRegister(
		TxSubmitted,
		TxConfirmed,
		TxFailed,
		TxTimeouts,
		EstimateFallbacks,
		ReconciliationRuns,
		ReconciliationDiscrepancies,
		SubmissionDuration,
	)
}
