package escrow

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/mselser95/reservation-escrow/internal/testutil"
)

func TestList_Validation(t *testing.T) {
	tests := []struct {
		name    string
		price   *big.Int
		expiry  time.Time
		res     func(env *testEnv) testutil.Reservation
		wantErr error
	}{
		{name: "zero-price", price: big.NewInt(0), expiry: expiry, wantErr: ErrInvalidPrice},
		{name: "negative-price", price: big.NewInt(-1), expiry: expiry, wantErr: ErrInvalidPrice},
		{name: "nil-price", price: nil, expiry: expiry, wantErr: ErrInvalidPrice},
		{name: "expiry-inside-lead-time", price: big.NewInt(10_000), expiry: testutil.T0.Add(59 * time.Minute), wantErr: ErrInvalidExpiry},
		{name: "expiry-after-slot", price: big.NewInt(10_000), expiry: slot.Add(time.Minute), wantErr: ErrInvalidExpiry},
		{
			name:   "unsupported-platform",
			price:  big.NewInt(10_000),
			expiry: expiry,
			res: func(env *testEnv) testutil.Reservation {
				r := env.res
				r.Platform = "tock"
				return r
			},
			wantErr: ErrInvalidProof,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			res := env.res
			if tt.res != nil {
				res = tt.res(env)
			}

			_, err := env.engine.List(context.Background(), seller,
				env.attester.Confirmation(t, res, testutil.T0), tt.price, tt.expiry)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := len(env.engine.Listings("")); got != 0 {
				t.Errorf("rejected list created %d listings", got)
			}
			if got := env.available(seller); got != 10_000 {
				t.Errorf("rejected list moved seller funds: %d", got)
			}
		})
	}
}

func TestList_RecordsClaimContext(t *testing.T) {
	env := newTestEnv(t)
	id := env.list(t)

	l, err := env.engine.Listing(id)
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if l.ReservationHash != env.res.Hash() {
		t.Errorf("reservation hash = %s, want %s", l.ReservationHash.Hex(), env.res.Hash().Hex())
	}
	if l.Venue != "Le Bernardin" || l.PartySize != 2 || !l.SlotTime.Equal(slot) {
		t.Errorf("unexpected context: venue=%q party=%d slot=%s", l.Venue, l.PartySize, l.SlotTime)
	}
	if l.ListingFee.Int64() != 250 || l.EscrowAmount.Int64() != 1_000 {
		t.Errorf("fee=%s stake=%s, want 250/1000", l.ListingFee, l.EscrowAmount)
	}
	if id != ListingID(seller, env.res.Hash(), 0) {
		t.Error("listing id does not match derivation")
	}
}

func TestList_DuplicateReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	confirmation := env.attester.Confirmation(t, env.res, testutil.T0)

	first, err := env.engine.List(ctx, seller, confirmation, big.NewInt(10_000), expiry)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	_, err = env.engine.List(ctx, stranger, confirmation, big.NewInt(10_000), expiry)
	if !errors.Is(err, ErrDuplicateListing) {
		t.Fatalf("expected ErrDuplicateListing, got %v", err)
	}

	// Cancelling frees the reservation for a new listing.
	if err := env.engine.CancelListing(ctx, seller, first); err != nil {
		t.Fatalf("CancelListing() error = %v", err)
	}
	second, err := env.engine.List(ctx, seller, confirmation, big.NewInt(12_000), expiry)
	if err != nil {
		t.Fatalf("relist after cancel error = %v", err)
	}
	if second == first {
		t.Error("expected a new listing id after relisting")
	}
}

func TestList_BurnedReservationCannotBeRelisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.buy(t, env.list(t))
	env.cancel(t, orderID)

	env.clock.Set(coordination.Add(time.Hour))
	if err := env.engine.SettleExpired(ctx, stranger, orderID); err != nil {
		t.Fatalf("SettleExpired() error = %v", err)
	}

	_, err := env.engine.List(ctx, seller, env.attester.Confirmation(t, env.res, env.clock.Now()), big.NewInt(10_000), expiry)
	if !errors.Is(err, ErrDuplicateListing) {
		t.Fatalf("expected ErrDuplicateListing for a cancelled reservation, got %v", err)
	}
}

func TestList_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.List(context.Background(), stranger,
		env.attester.Confirmation(t, env.res, testutil.T0), big.NewInt(10_000), expiry)
	if !errors.Is(err, ErrFunds) {
		t.Fatalf("expected funds error, got %v", err)
	}
	if env.engine.Store().ReservationTaken(env.res.Hash()) {
		t.Error("failed list must not bind the reservation")
	}
	env.assertConserved(t)
}

func TestCancelListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.list(t)

	err := env.engine.CancelListing(ctx, stranger, id)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := env.engine.CancelListing(ctx, seller, id); err != nil {
		t.Fatalf("CancelListing() error = %v", err)
	}
	if env.listingStatus(t, id) != ListingCancelled {
		t.Errorf("status = %s, want cancelled", env.listingStatus(t, id))
	}
	// Stake back, listing fee kept.
	if got := env.available(seller); got != 10_000-250 {
		t.Errorf("seller available = %d, want %d", got, 10_000-250)
	}
	if got := env.escrowed(seller); got != 0 {
		t.Errorf("seller escrowed = %d, want 0", got)
	}

	err = env.engine.CancelListing(ctx, seller, id)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus on second cancel, got %v", err)
	}
}

func TestCancelListing_Matched(t *testing.T) {
	env := newTestEnv(t)
	id := env.list(t)
	env.buy(t, id)

	err := env.engine.CancelListing(context.Background(), seller, id)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if env.listingStatus(t, id) != ListingMatched {
		t.Errorf("status = %s, want matched", env.listingStatus(t, id))
	}
}

func TestExpireListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.list(t)

	env.clock.Set(expiry)
	err := env.engine.ExpireListing(ctx, stranger, id)
	if !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired at expiry, got %v", err)
	}

	env.clock.Advance(time.Second)
	if due := env.engine.ExpiredListings(env.clock.Now()); len(due) != 1 {
		t.Fatalf("expired listings = %d, want 1", len(due))
	}
	if err := env.engine.ExpireListing(ctx, stranger, id); err != nil {
		t.Fatalf("ExpireListing() error = %v", err)
	}
	if env.listingStatus(t, id) != ListingCancelled {
		t.Errorf("status = %s, want cancelled", env.listingStatus(t, id))
	}
	if got := env.available(seller); got != 10_000-250 {
		t.Errorf("seller available = %d", got)
	}

	evts := env.engine.Events().Since(0, 0)
	last := evts[len(evts)-1]
	if last.Type != EventListingExpired || last.Actor != stranger.Hex() {
		t.Errorf("last event = %s by %s", last.Type, last.Actor)
	}
}

func TestListings_FilterByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCredit(t, env.engine, seller, 10_000)

	first := env.list(t)
	other := testutil.CreateTestReservation("OT-5005", slot)
	env.clock.Advance(time.Minute)
	second, err := env.engine.List(ctx, seller, env.attester.Confirmation(t, other, env.clock.Now()), big.NewInt(5_000), expiry)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	env.buy(t, second)

	all := env.engine.Listings("")
	if len(all) != 2 || all[0].ID != first || all[1].ID != second {
		t.Fatalf("expected both listings oldest first, got %d", len(all))
	}
	active := env.engine.Listings(ListingActive)
	if len(active) != 1 || active[0].ID != first {
		t.Errorf("active filter returned %d listings", len(active))
	}
	matched := env.engine.Listings(ListingMatched)
	if len(matched) != 1 || matched[0].ID != second {
		t.Errorf("matched filter returned %d listings", len(matched))
	}
}
