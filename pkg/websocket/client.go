package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client holds a single WebSocket connection to an event stream and
// reconnects with backoff when it drops.
type Client struct {
	config          ClientConfig
	conn            *websocket.Conn
	logger          *zap.Logger
	reconnectMgr    *ReconnectManager
	messageChan     chan []byte
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	connected       atomic.Bool
	connectionStart atomic.Int64
}

// ClientConfig holds stream client configuration.
type ClientConfig struct {
	// URL is evaluated on every dial so callers can resume from a cursor.
	URL                   func() string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// NewClient creates a stream client.
func NewClient(cfg ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 256
	}

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Client{
		config:       cfg,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		messageChan:  make(chan []byte, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start dials the stream and starts the read, ping and reconnect loops.
func (c *Client) Start() error {
	if c.config.URL == nil {
		return fmt.Errorf("stream url is required")
	}

	err := c.connect(c.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	c.wg.Add(3)
	go c.readLoop()
	go c.pingLoop()
	go c.reconnectLoop()

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.DialTimeout,
	}

	url := c.config.URL()
	c.logger.Info("connecting-to-event-stream", zap.String("url", url))

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.connected.Store(true)
	c.connectionStart.Store(time.Now().Unix())
	ClientConnected.Set(1)

	c.logger.Info("event-stream-connected")
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("read-error", zap.Error(err))
			}

			start := c.connectionStart.Load()
			if start > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(start, 0)).Seconds())
			}

			c.connected.Store(false)
			ClientConnected.Set(0)
			return
		}

		MessagesReceivedTotal.Inc()

		select {
		case c.messageChan <- message:
		default:
			c.logger.Warn("message-channel-full")
			MessagesDroppedTotal.Inc()
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				continue
			}

			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				c.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop watches for a dropped connection and redials.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		if c.connected.Load() {
			continue
		}

		c.logger.Warn("connection-lost-initiating-reconnect")

		err := c.reconnectMgr.Reconnect(c.ctx, c.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		// Close raced with a successful dial.
		if c.ctx.Err() != nil {
			c.mu.RLock()
			c.conn.Close()
			c.mu.RUnlock()
			return
		}

		c.wg.Add(1)
		go c.readLoop()
	}
}

// MessageChan returns received messages.
func (c *Client) MessageChan() <-chan []byte {
	return c.messageChan
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Close stops every loop, closes the connection and the message channel.
func (c *Client) Close() error {
	c.logger.Info("closing-event-stream-client")

	c.cancel()

	c.mu.RLock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.RUnlock()

	c.wg.Wait()
	close(c.messageChan)
	ClientConnected.Set(0)

	return nil
}
