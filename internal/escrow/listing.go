package escrow

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mselser95/reservation-escrow/internal/proof"
)

// List creates an Active listing for the reservation attested by p. The
// seller pays the listing fee to the treasury and escrows a refundable stake.
func (e *Engine) List(ctx context.Context, seller common.Address, p proof.Proof, price *big.Int, expiry time.Time) (id common.Hash, err error) {
	start := time.Now()
	defer func() { e.observe("list", start, err) }()

	now := e.clock.Now()
	if price == nil || price.Sign() <= 0 {
		return common.Hash{}, newError(ErrInvalidPrice, "", "price must be positive")
	}
	if expiry.Before(now.Add(e.timing.MinLeadTime)) {
		return common.Hash{}, newError(ErrInvalidExpiry, "", "expiry must be at least %s from now", e.timing.MinLeadTime)
	}

	claim, err := e.verifier.Verify(ctx, p, proof.Expectation{EventType: proof.EventConfirmation})
	if err != nil {
		return common.Hash{}, proofError(err, "")
	}

	slot := slotTime(claim)
	if !slot.IsZero() && expiry.After(slot) {
		return common.Hash{}, newError(ErrInvalidExpiry, claim.ReservationHash.Hex(), "expiry is after the reservation time")
	}

	unlock := e.lock(claim.ReservationHash)
	defer unlock()

	if e.store.ReservationTaken(claim.ReservationHash) {
		return common.Hash{}, newError(ErrDuplicateListing, claim.ReservationHash.Hex(), "reservation already listed")
	}

	quote := e.fees.Quote(price)
	var listing *Listing
	err = e.commitNew(seller, now, func(nonce uint64) (*change, *Tx) {
		listing = &Listing{
			ID:              ListingID(seller, claim.ReservationHash, nonce),
			Seller:          seller,
			ReservationHash: claim.ReservationHash,
			ContextHash:     claim.ContextHash,
			Platform:        claim.Platform,
			Venue:           claim.Fields["venue"],
			SlotTime:        slot,
			PartySize:       partySize(claim),
			Price:           quote.Price,
			EscrowAmount:    quote.SellerStake,
			ListingFee:      quote.ListingFee,
			Expiry:          expiry,
			Status:          ListingActive,
			CreatedAt:       now,
		}

		tx := NewTx()
		tx.Pay(seller, e.treasury, quote.ListingFee)
		tx.Lock(seller, listing.ID, quote.SellerStake)
		return &change{listing: listing, bindReservation: true}, tx
	})
	if err != nil {
		return common.Hash{}, err
	}

	e.emit(NewListingCreatedEvent(listing, now))
	e.logger.Info("listing-created",
		zap.String("listing-id", listing.ID.Hex()),
		zap.String("seller", seller.Hex()),
		zap.String("platform", string(listing.Platform)),
		zap.String("price", listing.Price.String()),
		zap.String("listing-fee", listing.ListingFee.String()),
		zap.Time("expiry", expiry))

	return listing.ID, nil
}

// CancelListing withdraws an Active listing. Only the seller may cancel.
func (e *Engine) CancelListing(ctx context.Context, caller common.Address, listingID common.Hash) (err error) {
	start := time.Now()
	defer func() { e.observe("cancel_listing", start, err) }()

	unlock := e.lock(listingID)
	defer unlock()

	listing, err := e.Listing(listingID)
	if err != nil {
		return err
	}
	if caller != listing.Seller {
		return newError(ErrUnauthorized, listingID.Hex(), "only the seller can cancel a listing")
	}
	if listing.Status != ListingActive {
		return newError(ErrInvalidStatus, listingID.Hex(), "listing is %s", listing.Status)
	}

	now := e.clock.Now()
	err = e.closeListing(listing, now)
	if err != nil {
		return err
	}

	e.emit(NewListingCancelledEvent(listing, caller, now, "seller"))
	e.logger.Info("listing-cancelled", zap.String("listing-id", listingID.Hex()))
	return nil
}

// ExpireListing cancels an Active listing past its expiry. Anyone may call it.
func (e *Engine) ExpireListing(ctx context.Context, caller common.Address, listingID common.Hash) (err error) {
	start := time.Now()
	defer func() { e.observe("expire_listing", start, err) }()

	unlock := e.lock(listingID)
	defer unlock()

	listing, err := e.Listing(listingID)
	if err != nil {
		return err
	}
	if listing.Status != ListingActive {
		return newError(ErrInvalidStatus, listingID.Hex(), "listing is %s", listing.Status)
	}
	now := e.clock.Now()
	if !now.After(listing.Expiry) {
		return newError(ErrNotExpired, listingID.Hex(), "listing expires at %s", listing.Expiry.Format(time.RFC3339))
	}

	err = e.closeListing(listing, now)
	if err != nil {
		return err
	}

	e.emit(NewListingExpiredEvent(listing, caller, now))
	e.logger.Info("listing-expired",
		zap.String("listing-id", listingID.Hex()),
		zap.String("caller", caller.Hex()))
	return nil
}

// closeListing refunds the stake and marks listing Cancelled. The caller
// holds the listing lock.
func (e *Engine) closeListing(listing *Listing, now time.Time) error {
	tx := NewTx()
	tx.Release(listing.ID, listing.Seller, listing.EscrowAmount)

	listing.Status = ListingCancelled
	listing.ActiveOrderID = common.Hash{}
	return e.commit(&change{listing: listing, releaseReservation: true}, tx, now)
}

func slotTime(claim *proof.VerifiedClaim) time.Time {
	secs, err := strconv.ParseInt(claim.Fields["slot_time"], 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func partySize(claim *proof.VerifiedClaim) int {
	n, err := strconv.Atoi(claim.Fields["party_size"])
	if err != nil {
		return 0
	}
	return n
}
