package escrow

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/internal/testutil"
)

var (
	seller   = testutil.Address(0xA1)
	buyer    = testutil.Address(0xB1)
	treasury = testutil.Address(0xFE)
	stranger = testutil.Address(0xC1)
)

// Timeline: listing at T0, reservation slot at T0+72h, listing expiry at
// T0+48h, coordination at T0+24h.
var (
	slot         = testutil.T0.Add(72 * time.Hour)
	expiry       = testutil.T0.Add(48 * time.Hour)
	coordination = testutil.T0.Add(24 * time.Hour)
)

type testEnv struct {
	engine   *Engine
	clock    *testutil.Clock
	attester *testutil.Attester
	res      testutil.Reservation
}

type envOption func(cfg *Config)

func withRelist() envOption {
	return func(cfg *Config) { cfg.RelistOnTimeout = true }
}

func withFees(p fees.Params) envOption {
	return func(cfg *Config) {
		c, err := fees.New(p)
		if err != nil {
			panic(err)
		}
		cfg.Fees = c
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	clock := testutil.NewClock(testutil.T0)
	attester := testutil.NewAttester(t)
	calc, err := fees.New(fees.DefaultParams())
	if err != nil {
		t.Fatalf("fees.New() error = %v", err)
	}

	cfg := &Config{
		Verifier: attester.Verifier(t, clock),
		Fees:     calc,
		Clock:    clock,
		Timing:   DefaultTiming(),
		Treasury: treasury,
		Logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mustCredit(t, engine, seller, 10_000)
	mustCredit(t, engine, buyer, 20_000)

	return &testEnv{
		engine:   engine,
		clock:    clock,
		attester: attester,
		res:      testutil.CreateTestReservation("OT-1001", slot),
	}
}

func mustCredit(t *testing.T, e *Engine, addr common.Address, amount int64) {
	t.Helper()
	if err := e.Credit(addr, big.NewInt(amount)); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
}

// list creates the default listing at price 100.00.
func (env *testEnv) list(t *testing.T) common.Hash {
	t.Helper()
	id, err := env.engine.List(context.Background(), seller,
		env.attester.Confirmation(t, env.res, env.clock.Now()), big.NewInt(10_000), expiry)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	return id
}

func (env *testEnv) buy(t *testing.T, listingID common.Hash) common.Hash {
	t.Helper()
	id, err := env.engine.Buy(context.Background(), buyer, listingID, coordination)
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	return id
}

// cancel advances to the coordination time and executes the cancellation.
func (env *testEnv) cancel(t *testing.T, orderID common.Hash) {
	t.Helper()
	env.clock.Set(coordination)
	err := env.engine.ExecuteCancellation(context.Background(), seller, orderID,
		env.attester.Cancellation(t, env.res, coordination))
	if err != nil {
		t.Fatalf("ExecuteCancellation() error = %v", err)
	}
}

func (env *testEnv) available(addr common.Address) int64 {
	return env.engine.Balance(addr).Available.Int64()
}

func (env *testEnv) escrowed(addr common.Address) int64 {
	return env.engine.Balance(addr).Escrowed.Int64()
}

func (env *testEnv) assertConserved(t *testing.T) {
	t.Helper()
	minted, accounted := env.engine.Ledger().Supply()
	if minted.Cmp(accounted) != 0 {
		t.Fatalf("ledger not conserved: minted %s, accounted %s", minted, accounted)
	}
}

func (env *testEnv) listingStatus(t *testing.T, id common.Hash) ListingStatus {
	t.Helper()
	l, err := env.engine.Listing(id)
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	return l.Status
}

func (env *testEnv) orderStatus(t *testing.T, id common.Hash) OrderStatus {
	t.Helper()
	o, err := env.engine.Order(id)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	return o.Status
}
