package keeper

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/reservation-escrow/internal/escrow"
)

// Due lists the entities a keeper may finalize.
type Due struct {
	Orders   []common.Hash
	Listings []common.Hash
}

// Target is what a keeper sweeps: an in-process engine or a remote service.
type Target interface {
	Ping(ctx context.Context) error
	Due(ctx context.Context) (*Due, error)
	SettleExpired(ctx context.Context, orderID common.Hash) error
	ExpireListing(ctx context.Context, listingID common.Hash) error
}

// Engine is the subset of *escrow.Engine the local target needs.
type Engine interface {
	Now() time.Time
	DueOrders(now time.Time) []*escrow.Order
	ExpiredListings(now time.Time) []*escrow.Listing
	SettleExpired(ctx context.Context, caller common.Address, orderID common.Hash) error
	ExpireListing(ctx context.Context, caller common.Address, listingID common.Hash) error
}

// EngineTarget drives an in-process engine as caller.
type EngineTarget struct {
	engine Engine
	caller common.Address
}

// NewEngineTarget creates a local target.
func NewEngineTarget(engine Engine, caller common.Address) *EngineTarget {
	return &EngineTarget{engine: engine, caller: caller}
}

// Ping always succeeds; the engine is in-process.
func (t *EngineTarget) Ping(context.Context) error {
	return nil
}

// Due reads due orders and expired listings at the engine's clock.
func (t *EngineTarget) Due(context.Context) (*Due, error) {
	now := t.engine.Now()
	due := &Due{}
	for _, o := range t.engine.DueOrders(now) {
		due.Orders = append(due.Orders, o.ID)
	}
	for _, l := range t.engine.ExpiredListings(now) {
		due.Listings = append(due.Listings, l.ID)
	}
	return due, nil
}

// SettleExpired finalizes an order past its claim deadline.
func (t *EngineTarget) SettleExpired(ctx context.Context, orderID common.Hash) error {
	return t.engine.SettleExpired(ctx, t.caller, orderID)
}

// ExpireListing closes an unsold listing past its expiry.
func (t *EngineTarget) ExpireListing(ctx context.Context, listingID common.Hash) error {
	return t.engine.ExpireListing(ctx, t.caller, listingID)
}
