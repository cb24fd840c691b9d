package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CircuitBreakerEnabled indicates whether the circuit breaker allows sweeps.
	CircuitBreakerEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_keeper_breaker_enabled",
		Help: "Whether the keeper circuit breaker allows sweeps (1=enabled, 0=disabled)",
	})

	// CircuitBreakerFailureRatio tracks the failure ratio over the rolling window.
	CircuitBreakerFailureRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_keeper_breaker_failure_ratio",
		Help: "Share of failed keeper actions in the rolling window",
	})

	// CircuitBreakerStateChanges tracks transitions by new state.
	CircuitBreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_keeper_breaker_state_changes_total",
		Help: "Circuit breaker transitions by resulting state",
	}, []string{"state"})

	// CircuitBreakerCheckDuration tracks the time taken to ping the target.
	CircuitBreakerCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_keeper_breaker_check_duration_seconds",
		Help:    "Time taken to ping the keeper target",
		Buckets: prometheus.DefBuckets,
	})
)
