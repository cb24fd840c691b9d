package escrow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_escrow_operations_total",
		Help: "Escrow operations by name and result (ok or error kind)",
	}, []string{"operation", "result"})

	OperationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reservation_escrow_operation_duration_seconds",
		Help:    "Time spent in escrow operations, including proof verification",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"operation"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_escrow_events_total",
		Help: "Events appended to the protocol log by type",
	}, []string{"type"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_escrow_settlements_total",
		Help: "Orders finalized by outcome",
	}, []string{"outcome"})
)
