package escrow

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Buy matches an Active listing. The buyer escrows the price plus a
// refundable deposit; the listing becomes Matched and a Pending order is
// created. The status check and write happen under the listing lock, so of
// two racing buys exactly one succeeds.
func (e *Engine) Buy(ctx context.Context, buyer common.Address, listingID common.Hash, coordinationTime time.Time) (id common.Hash, err error) {
	start := time.Now()
	defer func() { e.observe("buy", start, err) }()

	unlock := e.lock(listingID)
	defer unlock()

	listing, err := e.Listing(listingID)
	if err != nil {
		return common.Hash{}, err
	}
	if listing.Status != ListingActive {
		return common.Hash{}, newError(ErrListingUnavailable, listingID.Hex(), "listing is %s", listing.Status)
	}
	if buyer == listing.Seller {
		return common.Hash{}, newError(ErrSelfPurchase, listingID.Hex(), "seller cannot buy their own listing")
	}

	now := e.clock.Now()
	if coordinationTime.Before(now.Add(e.timing.MinLeadTime)) || coordinationTime.After(listing.Expiry) {
		return common.Hash{}, newError(ErrInvalidCoordinationTime, listingID.Hex(),
			"coordination time must be within [%s, %s]",
			now.Add(e.timing.MinLeadTime).Format(time.RFC3339), listing.Expiry.Format(time.RFC3339))
	}

	deposit := e.fees.BuyerDeposit(listing.Price)
	var order *Order
	err = e.commitNew(buyer, now, func(nonce uint64) (*change, *Tx) {
		order = &Order{
			ID:               OrderID(listingID, buyer, nonce),
			Buyer:            buyer,
			ListingID:        listingID,
			PaymentAmount:    new(big.Int).Set(listing.Price),
			DepositAmount:    deposit,
			CoordinationTime: coordinationTime,
			ClaimDeadline:    coordinationTime.Add(e.timing.ClaimWindow),
			Status:           OrderPending,
			CreatedAt:        now,
		}

		tx := NewTx()
		tx.Lock(buyer, order.ID, new(big.Int).Add(order.PaymentAmount, deposit))

		listing.Status = ListingMatched
		listing.ActiveOrderID = order.ID
		return &change{listing: listing, order: order}, tx
	})
	if err != nil {
		return common.Hash{}, err
	}

	e.emit(NewOrderCreatedEvent(order, now))
	e.logger.Info("order-created",
		zap.String("order-id", order.ID.Hex()),
		zap.String("listing-id", listingID.Hex()),
		zap.String("buyer", buyer.Hex()),
		zap.String("deposit", deposit.String()),
		zap.Time("coordination-time", coordinationTime),
		zap.Time("claim-deadline", order.ClaimDeadline))

	return order.ID, nil
}

// lockOrder resolves an order to its listing and takes the listing lock. The
// returned order and listing are read under the lock.
func (e *Engine) lockOrder(orderID common.Hash) (*Order, *Listing, func(), error) {
	o, err := e.Order(orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	unlock := e.lock(o.ListingID)

	o, err = e.Order(orderID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	l, err := e.Listing(o.ListingID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return o, l, unlock, nil
}
