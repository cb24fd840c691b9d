package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SubmissionsTotal counts email submissions by command and outcome.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_relayer_submissions_total",
		Help: "Email submissions by command and result",
	}, []string{"command", "result"})

	// ProofsSignedTotal counts signed proofs by payload type.
	ProofsSignedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_relayer_proofs_signed_total",
		Help: "Proofs signed by the relayer, by payload type",
	}, []string{"type"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_relayer_queue_depth",
		Help: "Submissions waiting for the worker",
	})

	ProcessingDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_relayer_processing_duration_seconds",
		Help:    "Time to extract and sign one submission",
		Buckets: prometheus.DefBuckets,
	})

	// RateLimitedTotal counts requests rejected by the per-client limiter.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_relayer_rate_limited_total",
		Help: "Requests rejected with 429",
	})
)
