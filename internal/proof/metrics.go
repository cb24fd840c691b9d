package proof

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_proof_verifications_total",
		Help: "Proof verifications by expected event type and result",
	}, []string{"event_type", "result"})
)
