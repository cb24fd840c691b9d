package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mselser95/reservation-escrow/internal/testutil"
)

func TestBuy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		buyer   common.Address
		coord   time.Time
		wantErr error
	}{
		{name: "self-purchase", buyer: seller, coord: coordination, wantErr: ErrSelfPurchase},
		{name: "inside-lead-time", buyer: buyer, coord: testutil.T0.Add(30 * time.Minute), wantErr: ErrInvalidCoordinationTime},
		{name: "after-expiry", buyer: buyer, coord: expiry.Add(time.Second), wantErr: ErrInvalidCoordinationTime},
		{name: "no-funds", buyer: stranger, coord: coordination, wantErr: ErrInsufficientFunds},
		{name: "at-lead-time", buyer: buyer, coord: testutil.T0.Add(DefaultMinLeadTime), wantErr: nil},
		{name: "at-expiry", buyer: buyer, coord: expiry, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			listingID := env.list(t)

			_, err := env.engine.Buy(context.Background(), tt.buyer, listingID, tt.coord)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Buy() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if env.listingStatus(t, listingID) != ListingActive {
				t.Errorf("rejected buy changed listing status")
			}
			if n := len(env.engine.OrdersForListing(listingID)); n != 0 {
				t.Errorf("rejected buy created %d orders", n)
			}
		})
	}
}

func TestBuy_UnavailableListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Buy(ctx, buyer, common.Hash{0x42}, coordination)
	if !errors.Is(err, ErrListingNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	id := env.list(t)
	if err := env.engine.CancelListing(ctx, seller, id); err != nil {
		t.Fatalf("CancelListing() error = %v", err)
	}
	_, err = env.engine.Buy(ctx, buyer, id, coordination)
	if !errors.Is(err, ErrListingUnavailable) {
		t.Fatalf("expected ErrListingUnavailable, got %v", err)
	}
}

func TestOrder_ViewStatus(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.buy(t, env.list(t))
	o, _ := env.engine.Order(orderID)

	tol := DefaultEarlyCancelTolerance
	if got := o.ViewStatus(testutil.T0, tol); got != OrderPending {
		t.Errorf("before window: %s, want pending", got)
	}
	if got := o.ViewStatus(coordination.Add(-tol), tol); got != OrderCoordinating {
		t.Errorf("inside window: %s, want coordinating", got)
	}
}

func TestDueOrders(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.buy(t, env.list(t))

	if due := env.engine.DueOrders(coordination.Add(DefaultClaimWindow)); len(due) != 0 {
		t.Errorf("due at deadline = %d, want 0", len(due))
	}
	due := env.engine.DueOrders(coordination.Add(DefaultClaimWindow + time.Second))
	if len(due) != 1 || due[0].ID != orderID {
		t.Fatalf("expected the order to be due, got %d", len(due))
	}
}
