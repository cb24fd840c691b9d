package websocket

import (
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url func() string) *Client {
	return NewClient(ClientConfig{
		URL:                   url,
		DialTimeout:           time.Second,
		PingInterval:          time.Second,
		ReconnectInitialDelay: 20 * time.Millisecond,
		ReconnectMaxDelay:     100 * time.Millisecond,
		ReconnectBackoffMult:  2,
		MessageBufferSize:     8,
		Logger:                zap.NewNop(),
	})
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.MessageChan():
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestClient_ReceivesBroadcasts(t *testing.T) {
	hub, srv := newTestHub(t, nil)

	client := newTestClient(func() string { return wsURL(srv, "") })
	require.NoError(t, client.Start())
	defer client.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, client.Connected())

	hub.Broadcast(testMessage{Sequence: 1, Type: "order.settled"})
	assert.JSONEq(t, `{"sequence":1,"type":"order.settled"}`, receive(t, client))
}

func TestClient_StartRequiresURL(t *testing.T) {
	client := newTestClient(nil)
	assert.Error(t, client.Start())
}

func TestClient_StartFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := wsURL(srv, "")
	srv.Close()

	client := newTestClient(func() string { return url })
	assert.Error(t, client.Start())
}

func TestClient_ReconnectsWithFreshURL(t *testing.T) {
	hub, srv := newTestHub(t, nil)

	var dials atomic.Int32
	client := newTestClient(func() string {
		dials.Add(1)
		return wsURL(srv, "")
	})
	require.NoError(t, client.Start())
	defer client.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Dropping every subscriber forces the client to redial.
	hub.mu.RLock()
	for sub := range hub.clients {
		sub.conn.Close()
	}
	hub.mu.RUnlock()

	require.Eventually(t, func() bool { return dials.Load() >= 2 && hub.Clients() == 1 }, 3*time.Second, 10*time.Millisecond)

	hub.Broadcast(testMessage{Sequence: 9})
	assert.JSONEq(t, `{"sequence":9,"type":""}`, receive(t, client))
}

func TestClient_CloseClosesChannel(t *testing.T) {
	_, srv := newTestHub(t, nil)

	client := newTestClient(func() string { return wsURL(srv, "") })
	require.NoError(t, client.Start())
	require.NoError(t, client.Close())

	_, ok := <-client.MessageChan()
	assert.False(t, ok)
	assert.False(t, client.Connected())
}
