package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mselser95/reservation-escrow/internal/proof"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingMatched   ListingStatus = "matched"
	ListingCompleted ListingStatus = "completed"
	ListingCancelled ListingStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s ListingStatus) IsTerminal() bool {
	return s == ListingCompleted || s == ListingCancelled
}

// ParseListingStatus parses a status name. The empty string is an error.
func ParseListingStatus(s string) (ListingStatus, bool) {
	switch st := ListingStatus(s); st {
	case ListingActive, ListingMatched, ListingCompleted, ListingCancelled:
		return st, true
	default:
		return "", false
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	// OrderCoordinating is informational: a Pending order inside its
	// coordination window is reported as Coordinating by views but is never
	// stored.
	OrderCoordinating OrderStatus = "coordinating"
	OrderClaiming     OrderStatus = "claiming"
	OrderSettled      OrderStatus = "settled"
	OrderFailed       OrderStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderSettled || s == OrderFailed
}

// Listing is a seller's offer to sell one confirmed reservation.
type Listing struct {
	ID              common.Hash
	Seller          common.Address
	ReservationHash common.Hash
	ContextHash     common.Hash
	Platform        proof.Platform
	Venue           string
	SlotTime        time.Time
	PartySize       int
	Price           *big.Int
	EscrowAmount    *big.Int // seller stake, held until terminal
	ListingFee      *big.Int // already paid to the treasury
	Expiry          time.Time
	Status          ListingStatus
	ActiveOrderID   common.Hash // zero unless Matched
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	c.Price = copyAmount(l.Price)
	c.EscrowAmount = copyAmount(l.EscrowAmount)
	c.ListingFee = copyAmount(l.ListingFee)
	return &c
}

// Order is a buyer's commitment against a listing.
type Order struct {
	ID               common.Hash
	Buyer            common.Address
	ListingID        common.Hash
	PaymentAmount    *big.Int // the listing price, held until terminal
	DepositAmount    *big.Int
	CoordinationTime time.Time
	ClaimDeadline    time.Time
	Status           OrderStatus
	CancelledAt      time.Time
	SettledAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.PaymentAmount = copyAmount(o.PaymentAmount)
	c.DepositAmount = copyAmount(o.DepositAmount)
	return &c
}

// ViewStatus is the status reported to observers at now: a Pending order
// whose coordination window has opened reads as Coordinating.
func (o *Order) ViewStatus(now time.Time, tolerance time.Duration) OrderStatus {
	if o.Status == OrderPending && !now.Before(o.CoordinationTime.Add(-tolerance)) {
		return OrderCoordinating
	}
	return o.Status
}

// Settlement is the fund movement applied when an order finalizes.
type Settlement struct {
	SellerAmount   *big.Int
	BuyerAmount    *big.Int
	ProtocolAmount *big.Int
	StakeRefund    *big.Int
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
