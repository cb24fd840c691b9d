package app

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"github.com/mselser95/reservation-escrow/internal/proof"
	"github.com/mselser95/reservation-escrow/internal/relayer"
	"github.com/mselser95/reservation-escrow/internal/testutil"
	"github.com/mselser95/reservation-escrow/pkg/config"
	"github.com/mselser95/reservation-escrow/pkg/httpserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	sellerKey = testutil.Key(0xA1)
	buyerKey  = testutil.Key(0xB1)
	seller    = testutil.KeyAddress(sellerKey)
	buyer     = testutil.KeyAddress(buyerKey)

	slot         = testutil.T0.Add(72 * time.Hour)
	expiry       = testutil.T0.Add(48 * time.Hour)
	coordination = testutil.T0.Add(24 * time.Hour)
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	signer, err := proof.GenerateSigner()
	require.NoError(t, err)

	return &config.Config{
		LogLevel:              "info",
		HTTPPort:              "0",
		Environment:           "development",
		ListingFeeBps:         250,
		SuccessFeeBps:         300,
		DepositMultiplier:     50,
		SellerStakeBps:        1000,
		ForfeitureSellerBps:   8000,
		MinLeadTime:           time.Hour,
		ClaimWindow:           10 * time.Minute,
		EarlyCancelTolerance:  2 * time.Minute,
		TreasuryAddress:       "0x000000000000000000000000000000000000fEE5",
		AmountDecimals:        2,
		ProofMaxClockSkew:     5 * time.Minute,
		ProofCacheTTL:         time.Minute,
		ProofCacheSize:        100,
		RelayerEnabled:        true,
		RelayerAttesterKey:    signer.HexKey(),
		RelayerRateLimit:      100,
		RelayerRateBurst:      100,
		KeeperEnabled:         true,
		KeeperInterval:        time.Hour,
		KeeperAddress:         "0x000000000000000000000000000000000000bEEF",
		KeeperBreakerWindow:   10,
		KeeperBreakerMaxRatio: 0.5,
		KeeperBreakerInterval: time.Hour,
		StorageMode:           "none",
	}
}

type appEnv struct {
	t       *testing.T
	clock   *testutil.Clock
	app     *App
	handler http.Handler
}

func newAppEnv(t *testing.T, cfg *config.Config) *appEnv {
	t.Helper()
	require.NoError(t, cfg.Validate())

	clock := testutil.NewClock(testutil.T0)
	a, err := New(cfg, zap.NewNop(), &Options{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	return &appEnv{t: t, clock: clock, app: a, handler: a.httpServer.Handler()}
}

func (e *appEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.doAs(nil, method, path, body)
}

func (e *appEnv) doAs(key *ecdsa.PrivateKey, method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	raw := buf.Bytes()
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if key != nil {
		require.NoError(e.t, httpserver.SignRequest(req, key, raw, e.clock.Now()))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

// generate asks the local relayer for a signed test proof.
func (e *appEnv) generate(typ relayer.ReservationType, reservationID string) json.RawMessage {
	e.t.Helper()
	at := slot
	w := e.do(http.MethodPost, "/relayer/api/v1/test/generate-proof", relayer.GenerateRequest{
		Platform:        "opentable",
		RestaurantName:  "Chez Test",
		PartySize:       2,
		ReservationType: typ,
		ReservationID:   reservationID,
		ReservationTime: &at,
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[relayer.ProofResponse](e.t, w).Proof
}

func (e *appEnv) fund(addr common.Address, amount string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/accounts/"+addr.Hex()+"/faucet", httpserver.FaucetRequest{Amount: amount})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func (e *appEnv) listAndBuy() (listingID, orderID string) {
	e.t.Helper()
	e.fund(seller, "100.00")
	e.fund(buyer, "200.00")

	w := e.doAs(sellerKey, http.MethodPost, "/api/listings", httpserver.ListRequest{
		Proof:  e.generate(relayer.TypeConfirmation, "OT-77"),
		Price:  "100.00",
		Expiry: expiry,
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	listingID = decodeBody[httpserver.IDResponse](e.t, w).ID

	w = e.doAs(buyerKey, http.MethodPost, "/api/listings/"+listingID+"/orders", httpserver.BuyRequest{
		CoordinationTime: coordination,
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	orderID = decodeBody[httpserver.IDResponse](e.t, w).ID
	return listingID, orderID
}

func TestApp_RelayerProofsSettleOrder(t *testing.T) {
	env := newAppEnv(t, testConfig(t))
	_, orderID := env.listAndBuy()

	env.clock.Set(coordination)
	w := env.do(http.MethodPost, "/api/orders/"+orderID+"/cancellation", httpserver.ProofRequest{
		Caller: seller.Hex(),
		Proof:  env.generate(relayer.TypeCancellation, "OT-77"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.clock.Advance(2 * time.Minute)
	w = env.do(http.MethodPost, "/api/orders/"+orderID+"/claim", httpserver.ProofRequest{
		Caller: buyer.Hex(),
		Proof:  env.generate(relayer.TypeNewBooking, "OT-78"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/orders/"+orderID, nil)
	assert.Equal(t, "settled", decodeBody[httpserver.OrderResponse](t, w).Status)

	w = env.do(http.MethodGet, "/api/accounts/"+seller.Hex(), nil)
	assert.Equal(t, "194.50", decodeBody[httpserver.BalanceResponse](t, w).Available)

	w = env.do(http.MethodGet, "/api/events", nil)
	events := decodeBody[httpserver.EventsResponse](t, w)
	require.Len(t, events.Events, 4)
	assert.Equal(t, escrow.EventOrderSettled, events.Events[3].Type)
}

func TestApp_EventStreamResumesFromCursor(t *testing.T) {
	env := newAppEnv(t, testConfig(t))
	env.listAndBuy()

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?since=1"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt escrow.Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, uint64(2), evt.Sequence)
	assert.Equal(t, escrow.EventOrderCreated, evt.Type)
}

func TestApp_KeeperSettlesExpiredOrder(t *testing.T) {
	env := newAppEnv(t, testConfig(t))
	_, orderID := env.listAndBuy()

	env.clock.Set(coordination.Add(11 * time.Minute))

	res, err := env.app.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, 0, res.Failed)

	w := env.do(http.MethodGet, "/api/orders/"+orderID, nil)
	assert.Equal(t, "failed", decodeBody[httpserver.OrderResponse](t, w).Status)
}

func TestApp_RelayerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RelayerEnabled = false
	cfg.RelayerAttesterKey = ""
	cfg.AttesterAddresses = []string{testutil.Address(0x77).Hex()}
	cfg.KeeperEnabled = false

	env := newAppEnv(t, cfg)
	assert.Nil(t, env.app.relayer)
	assert.Nil(t, env.app.keeper)

	w := env.do(http.MethodGet, "/relayer/api/v1/attester", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/protocol", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_RunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageMode = "console"

	a, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.journal)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	handler := a.httpServer.Handler()
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		return w.Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	a.cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("application did not shut down")
	}
}
