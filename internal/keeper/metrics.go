package keeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_keeper_sweeps_total",
		Help: "Keeper sweeps by result (ok, error, skipped)",
	}, []string{"result"})

	// ActionsTotal counts finalization attempts by action and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_keeper_actions_total",
		Help: "Keeper actions by action and outcome",
	}, []string{"action", "outcome"})

	SweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_keeper_sweep_duration_seconds",
		Help:    "Time taken by one keeper sweep",
		Buckets: prometheus.DefBuckets,
	})
)
