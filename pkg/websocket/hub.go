package websocket

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HubConfig holds event hub configuration.
type HubConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ClientBuffer int

	// Backlog, when set, returns messages after the given cursor. Clients
	// connecting with ?since=N receive Backlog(N) before live messages. The
	// subscriber is registered before Backlog runs, so a message broadcast
	// in between may arrive twice; clients deduplicate by sequence.
	Backlog func(since uint64) []any

	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

// Hub fans broadcast messages out to connected WebSocket subscribers.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type subscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	backlog [][]byte // written before anything in send
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 256
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:  cfg.Logger,
		clients: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		since     uint64
		hasCursor bool
	)
	if s := r.URL.Query().Get("since"); s != "" {
		var err error
		since, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			http.Error(w, "invalid since cursor", http.StatusBadRequest)
			return
		}
		hasCursor = h.cfg.Backlog != nil
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket-upgrade-failed", zap.Error(err))
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, h.cfg.ClientBuffer),
	}

	// Register before snapshotting the backlog so nothing broadcast in
	// between is lost. Live messages queue in sub.send until the backlog
	// has been written.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[sub] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	if hasCursor {
		for _, msg := range h.cfg.Backlog(since) {
			raw, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			sub.backlog = append(sub.backlog, raw)
		}
	}

	HubClients.Set(float64(count))
	h.logger.Info("stream-subscriber-connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("backlog", len(sub.backlog)),
		zap.Int("subscribers", count))

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// Broadcast encodes v once and queues it to every subscriber. A subscriber
// whose buffer is full is disconnected.
func (h *Hub) Broadcast(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("broadcast-encode-failed", zap.Error(err))
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for sub := range h.clients {
		select {
		case sub.send <- raw:
			HubMessagesSentTotal.Inc()
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		HubSlowClientsTotal.Inc()
		h.logger.Warn("stream-subscriber-too-slow")
		h.remove(sub)
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// remove unregisters sub and closes its send channel exactly once.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.clients[sub]
	if ok {
		delete(h.clients, sub)
		close(sub.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		HubClients.Set(float64(count))
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer h.wg.Done()
	defer sub.conn.Close()

	for _, msg := range sub.backlog {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		err := sub.conn.WriteMessage(websocket.TextMessage, msg)
		if err != nil {
			h.logger.Debug("stream-write-failed", zap.Error(err))
			h.remove(sub)
			return
		}
		HubMessagesSentTotal.Inc()
	}
	sub.backlog = nil

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			err := sub.conn.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				h.logger.Debug("stream-write-failed", zap.Error(err))
				h.remove(sub)
				return
			}
		case <-ticker.C:
			err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout))
			if err != nil {
				h.remove(sub)
				return
			}
		}
	}
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.wg.Done()

	sub.conn.SetReadLimit(512)
	for {
		_, _, err := sub.conn.ReadMessage()
		if err != nil {
			h.remove(sub)
			h.logger.Debug("stream-subscriber-disconnected", zap.Error(err))
			return
		}
	}
}

// Close disconnects every subscriber and waits for their loops to exit.
func (h *Hub) Close() error {
	h.logger.Info("closing-websocket-hub")

	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.remove(sub)
	}
	// Force blocked readers out.
	for _, sub := range subs {
		_ = sub.conn.SetReadDeadline(time.Now())
	}

	h.wg.Wait()
	HubClients.Set(0)
	return nil
}
