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

// ExecuteCancellation accepts proof that the seller cancelled the original
// reservation. It is valid from coordinationTime - tolerance until the claim
// deadline and moves the order to Claiming. The reservation hash is burned
// so it can never be listed again.
func (e *Engine) ExecuteCancellation(ctx context.Context, caller common.Address, orderID common.Hash, p proof.Proof) (err error) {
	start := time.Now()
	defer func() { e.observe("execute_cancellation", start, err) }()

	order, listing, unlock, err := e.lockOrder(orderID)
	if err != nil {
		return err
	}
	defer unlock()

	if order.Status != OrderPending {
		return newError(ErrInvalidStatus, orderID.Hex(), "order is %s", order.Status)
	}
	now := e.clock.Now()
	opens := order.CoordinationTime.Add(-e.timing.EarlyCancelTolerance)
	if now.Before(opens) {
		return newError(ErrTooEarly, orderID.Hex(), "cancellation window opens at %s", opens.Format(time.RFC3339))
	}
	if now.After(order.ClaimDeadline) {
		return newError(ErrTooLate, orderID.Hex(), "claim deadline passed at %s", order.ClaimDeadline.Format(time.RFC3339))
	}

	claim, err := e.verifier.Verify(ctx, p, proof.Expectation{
		EventType:       proof.EventCancellation,
		ReservationHash: listing.ReservationHash,
	})
	if err != nil {
		return proofError(err, orderID.Hex())
	}
	if claim.Timestamp.Before(opens) {
		return newError(ErrStaleEvent, orderID.Hex(), "cancellation happened before the coordination window")
	}
	if e.store.Consumed(claim.Digest) {
		return newError(ErrProofReplayed, orderID.Hex(), "proof already consumed")
	}

	order.Status = OrderClaiming
	order.CancelledAt = now

	err = e.commit(&change{
		listing:         listing,
		order:           order,
		burnReservation: true,
		consume:         []common.Hash{claim.Digest},
	}, nil, now)
	if err != nil {
		return err
	}

	e.emit(NewOrderClaimingEvent(order, caller, now, claim.Digest))
	e.logger.Info("order-claiming",
		zap.String("order-id", orderID.Hex()),
		zap.String("listing-id", listing.ID.Hex()),
		zap.Time("claim-deadline", order.ClaimDeadline))
	return nil
}

// ClaimReservation accepts proof that the buyer rebooked the same table and
// settles: the seller receives price - successFee plus the stake, the buyer
// gets the deposit back, and the treasury receives the success fee.
func (e *Engine) ClaimReservation(ctx context.Context, caller common.Address, orderID common.Hash, p proof.Proof) (err error) {
	start := time.Now()
	defer func() { e.observe("claim_reservation", start, err) }()

	order, listing, unlock, err := e.lockOrder(orderID)
	if err != nil {
		return err
	}
	defer unlock()

	if order.Status != OrderClaiming {
		return newError(ErrInvalidStatus, orderID.Hex(), "order is %s, cancellation must be executed first", order.Status)
	}
	now := e.clock.Now()
	if now.After(order.ClaimDeadline) {
		return newError(ErrTooLate, orderID.Hex(), "claim deadline passed at %s", order.ClaimDeadline.Format(time.RFC3339))
	}

	claim, err := e.verifier.Verify(ctx, p, proof.Expectation{
		EventType:   proof.EventNewBooking,
		ContextHash: listing.ContextHash,
	})
	if err != nil {
		return proofError(err, orderID.Hex())
	}
	if claim.Platform != listing.Platform {
		return newError(ErrContextMismatch, orderID.Hex(), "booking is on %s, listing is on %s", claim.Platform, listing.Platform)
	}
	if claim.ReservationHash == listing.ReservationHash {
		return newError(ErrHashMismatch, orderID.Hex(), "booking reuses the original reservation")
	}
	if claim.Timestamp.Before(order.CoordinationTime.Add(-e.timing.EarlyCancelTolerance)) {
		return newError(ErrStaleEvent, orderID.Hex(), "booking happened before the coordination window")
	}
	if e.store.Consumed(claim.Digest) {
		return newError(ErrProofReplayed, orderID.Hex(), "proof already consumed")
	}

	successFee := e.fees.SuccessFee(order.PaymentAmount)
	settlement := Settlement{
		SellerAmount:   new(big.Int).Sub(order.PaymentAmount, successFee),
		BuyerAmount:    new(big.Int).Set(order.DepositAmount),
		ProtocolAmount: successFee,
		StakeRefund:    new(big.Int).Set(listing.EscrowAmount),
	}

	tx := NewTx()
	tx.Release(order.ID, listing.Seller, settlement.SellerAmount)
	tx.Release(order.ID, order.Buyer, settlement.BuyerAmount)
	tx.Release(order.ID, e.treasury, settlement.ProtocolAmount)
	tx.Release(listing.ID, listing.Seller, settlement.StakeRefund)

	order.Status = OrderSettled
	order.SettledAt = now
	listing.Status = ListingCompleted

	err = e.commit(&change{
		listing: listing,
		order:   order,
		consume: []common.Hash{claim.Digest},
	}, tx, now)
	if err != nil {
		return err
	}

	SettlementsTotal.WithLabelValues("settled").Inc()
	e.emit(NewOrderSettledEvent(order, caller, now, claim.Digest, settlement))
	e.logger.Info("order-settled",
		zap.String("order-id", orderID.Hex()),
		zap.String("listing-id", listing.ID.Hex()),
		zap.String("seller-amount", settlement.SellerAmount.String()),
		zap.String("buyer-refund", settlement.BuyerAmount.String()),
		zap.String("success-fee", settlement.ProtocolAmount.String()))
	return nil
}

// SettleExpired fails an order left Pending or Claiming past its claim
// deadline. Anyone may call it. The payment goes back to the buyer and the
// deposit is split between seller and treasury. The listing is cancelled
// and its stake refunded. With relisting enabled, a reservation whose order
// failed while still Pending is released so the seller can list it again;
// otherwise it is burned.
func (e *Engine) SettleExpired(ctx context.Context, caller common.Address, orderID common.Hash) (err error) {
	start := time.Now()
	defer func() { e.observe("settle_expired", start, err) }()

	order, listing, unlock, err := e.lockOrder(orderID)
	if err != nil {
		return err
	}
	defer unlock()

	if order.Status != OrderPending && order.Status != OrderClaiming {
		return newError(ErrInvalidStatus, orderID.Hex(), "order is %s", order.Status)
	}
	now := e.clock.Now()
	if !now.After(order.ClaimDeadline) {
		return newError(ErrNotExpired, orderID.Hex(), "claim deadline is %s", order.ClaimDeadline.Format(time.RFC3339))
	}

	from := order.Status
	sellerShare, protocolShare := e.fees.SplitForfeiture(order.DepositAmount)
	settlement := Settlement{
		SellerAmount:   sellerShare,
		BuyerAmount:    new(big.Int).Set(order.PaymentAmount),
		ProtocolAmount: protocolShare,
		StakeRefund:    new(big.Int).Set(listing.EscrowAmount),
	}

	tx := NewTx()
	tx.Release(order.ID, order.Buyer, settlement.BuyerAmount)
	tx.Release(order.ID, listing.Seller, sellerShare)
	tx.Release(order.ID, e.treasury, protocolShare)
	tx.Release(listing.ID, listing.Seller, settlement.StakeRefund)

	listing.Status = ListingCancelled
	listing.ActiveOrderID = common.Hash{}

	// The listing itself never returns to Active. relistOnTimeout only
	// decides whether the seller may List the reservation again.
	relistable := from == OrderPending && e.relist
	c := &change{listing: listing, order: order}
	if relistable {
		c.releaseReservation = true
	} else {
		c.burnReservation = true
	}

	order.Status = OrderFailed
	order.SettledAt = now

	err = e.commit(c, tx, now)
	if err != nil {
		return err
	}

	SettlementsTotal.WithLabelValues("failed").Inc()
	e.emit(NewOrderFailedEvent(order, caller, now, from, settlement))
	cancelled := NewListingCancelledEvent(listing, caller, now, "order_failed")
	cancelled.Attributes["relistable"] = strconv.FormatBool(relistable)
	e.emit(cancelled)
	e.logger.Info("order-failed",
		zap.String("order-id", orderID.Hex()),
		zap.String("listing-id", listing.ID.Hex()),
		zap.String("failed-from", string(from)),
		zap.Bool("relistable", relistable),
		zap.String("seller-compensation", sellerShare.String()),
		zap.String("protocol-share", protocolShare.String()))
	return nil
}
