package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// EventsStoredTotal tracks journaled events by type.
	EventsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_journal_events_stored_total",
			Help: "Total number of events written to the journal",
		},
		[]string{"type"},
	)

	// StoreErrorsTotal tracks failed journal writes.
	StoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_journal_store_errors_total",
		Help: "Total number of failed journal writes",
	})

	// JournalDroppedTotal tracks events dropped on a full buffer.
	JournalDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_journal_dropped_total",
		Help: "Total number of events dropped because the journal buffer was full",
	})

	// JournalQueueDepth tracks buffered events awaiting storage.
	JournalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_journal_queue_depth",
		Help: "Events buffered in the journal",
	})

	// StoreDurationSeconds tracks journal write latency.
	StoreDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_journal_store_duration_seconds",
		Help:    "Duration of journal writes",
		Buckets: prometheus.DefBuckets,
	})
)
