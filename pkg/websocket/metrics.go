package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// HubClients tracks connected stream subscribers.
	HubClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_ws_hub_clients",
		Help: "Number of connected event stream subscribers",
	})

	// HubMessagesSentTotal tracks messages queued to subscribers.
	HubMessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_ws_hub_messages_sent_total",
		Help: "Total number of messages queued to subscribers",
	})

	// HubSlowClientsTotal tracks subscribers disconnected for falling behind.
	HubSlowClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_ws_hub_slow_clients_total",
		Help: "Total number of subscribers dropped because their buffer was full",
	})

	// ClientConnected is 1 while the stream client holds a connection.
	ClientConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_ws_client_connected",
		Help: "Whether the event stream client is connected",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_ws_reconnect_attempts_total",
		Help: "Total number of WebSocket reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_ws_reconnect_failures_total",
		Help: "Total number of WebSocket reconnection failures",
	})

	// MessagesReceivedTotal tracks messages read by the client.
	MessagesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_ws_messages_received_total",
		Help: "Total number of WebSocket messages received",
	})

	// MessagesDroppedTotal tracks client messages dropped due to a full channel.
	MessagesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_ws_messages_dropped_total",
		Help: "Total number of received messages dropped because the channel was full",
	})

	// ConnectionDuration tracks client connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})
)
