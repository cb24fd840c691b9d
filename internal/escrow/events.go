package escrow

import (
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	EventListingCreated   = "listing.created"
	EventListingCancelled = "listing.cancelled"
	EventListingExpired   = "listing.expired"
	EventOrderCreated     = "order.created"
	EventOrderClaiming    = "order.claiming"
	EventOrderSettled     = "order.settled"
	EventOrderFailed      = "order.failed"
)

// Event is one entry of the append-only protocol log.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	ListingID  string            `json:"listing_id,omitempty"`
	OrderID    string            `json:"order_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Emitter receives every event after it is appended, in sequence order.
// Implementations must not block and must not append to the log.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(evt Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) { f(evt) }

// EventLog is an append-only, sequence-numbered event log.
type EventLog struct {
	mu       sync.RWMutex
	events   []Event
	emitters []Emitter

	// fanout serializes delivery. It is taken before mu is released so
	// emitters see events in sequence order.
	fanout sync.Mutex
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{events: make([]Event, 0, 256)}
}

// Subscribe registers an emitter for events appended from now on.
func (l *EventLog) Subscribe(e Emitter) {
	if e == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emitters = append(l.emitters, e)
}

// Append assigns the next sequence number and fans the event out.
func (l *EventLog) Append(evt Event) Event {
	l.mu.Lock()
	evt.Sequence = uint64(len(l.events)) + 1
	l.events = append(l.events, evt)
	emitters := l.emitters
	l.fanout.Lock()
	l.mu.Unlock()
	defer l.fanout.Unlock()

	for _, e := range emitters {
		e.Emit(copyEvent(evt))
	}
	return copyEvent(evt)
}

// Since returns up to limit events with Sequence > after. limit <= 0 means
// no limit.
func (l *EventLog) Since(after uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if after >= uint64(len(l.events)) {
		return []Event{}
	}
	tail := l.events[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Event, len(tail))
	for i, evt := range tail {
		out[i] = copyEvent(evt)
	}
	return out
}

// Len returns the number of events appended so far.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func copyEvent(evt Event) Event {
	if evt.Attributes != nil {
		attrs := make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			attrs[k] = v
		}
		evt.Attributes = attrs
	}
	return evt
}

func newListingEvent(typ string, l *Listing, actor common.Address, at time.Time) Event {
	return Event{
		Type:      typ,
		ListingID: l.ID.Hex(),
		Actor:     actor.Hex(),
		Timestamp: at,
		Attributes: map[string]string{
			"seller":           l.Seller.Hex(),
			"status":           string(l.Status),
			"price":            l.Price.String(),
			"reservation_hash": l.ReservationHash.Hex(),
			"platform":         string(l.Platform),
		},
	}
}

// NewListingCreatedEvent describes a new Active listing.
func NewListingCreatedEvent(l *Listing, at time.Time) Event {
	evt := newListingEvent(EventListingCreated, l, l.Seller, at)
	evt.Attributes["listing_fee"] = l.ListingFee.String()
	evt.Attributes["escrow_amount"] = l.EscrowAmount.String()
	evt.Attributes["expiry"] = strconv.FormatInt(l.Expiry.Unix(), 10)
	return evt
}

// NewListingCancelledEvent describes a listing moving to Cancelled.
func NewListingCancelledEvent(l *Listing, actor common.Address, at time.Time, reason string) Event {
	evt := newListingEvent(EventListingCancelled, l, actor, at)
	evt.Attributes["reason"] = reason
	return evt
}

// NewListingExpiredEvent describes an Active listing lapsing.
func NewListingExpiredEvent(l *Listing, actor common.Address, at time.Time) Event {
	return newListingEvent(EventListingExpired, l, actor, at)
}

func newOrderEvent(typ string, o *Order, actor common.Address, at time.Time) Event {
	return Event{
		Type:      typ,
		ListingID: o.ListingID.Hex(),
		OrderID:   o.ID.Hex(),
		Actor:     actor.Hex(),
		Timestamp: at,
		Attributes: map[string]string{
			"buyer":  o.Buyer.Hex(),
			"status": string(o.Status),
		},
	}
}

// NewOrderCreatedEvent describes a new Pending order.
func NewOrderCreatedEvent(o *Order, at time.Time) Event {
	evt := newOrderEvent(EventOrderCreated, o, o.Buyer, at)
	evt.Attributes["payment_amount"] = o.PaymentAmount.String()
	evt.Attributes["deposit_amount"] = o.DepositAmount.String()
	evt.Attributes["coordination_time"] = strconv.FormatInt(o.CoordinationTime.Unix(), 10)
	evt.Attributes["claim_deadline"] = strconv.FormatInt(o.ClaimDeadline.Unix(), 10)
	return evt
}

// NewOrderClaimingEvent describes an accepted cancellation proof.
func NewOrderClaimingEvent(o *Order, actor common.Address, at time.Time, digest common.Hash) Event {
	evt := newOrderEvent(EventOrderClaiming, o, actor, at)
	evt.Attributes["proof_digest"] = digest.Hex()
	return evt
}

// NewOrderSettledEvent describes a successful settlement and its breakdown.
func NewOrderSettledEvent(o *Order, actor common.Address, at time.Time, digest common.Hash, s Settlement) Event {
	evt := newOrderEvent(EventOrderSettled, o, actor, at)
	evt.Attributes["proof_digest"] = digest.Hex()
	addSettlement(evt.Attributes, s)
	return evt
}

// NewOrderFailedEvent describes a timed-out order and its forfeiture split.
func NewOrderFailedEvent(o *Order, actor common.Address, at time.Time, from OrderStatus, s Settlement) Event {
	evt := newOrderEvent(EventOrderFailed, o, actor, at)
	evt.Attributes["failed_from"] = string(from)
	addSettlement(evt.Attributes, s)
	return evt
}

func addSettlement(attrs map[string]string, s Settlement) {
	put := func(key string, v *big.Int) {
		if v != nil {
			attrs[key] = v.String()
		}
	}
	put("seller_amount", s.SellerAmount)
	put("buyer_amount", s.BuyerAmount)
	put("protocol_amount", s.ProtocolAmount)
	put("stake_refund", s.StakeRefund)
}
