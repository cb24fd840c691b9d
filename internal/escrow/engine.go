package escrow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/internal/proof"
)

const (
	DefaultMinLeadTime          = time.Hour
	DefaultClaimWindow          = 10 * time.Minute
	DefaultEarlyCancelTolerance = 2 * time.Minute
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// Timing holds the protocol's time parameters.
type Timing struct {
	MinLeadTime          time.Duration // earliest coordination time and listing expiry, relative to now
	ClaimWindow          time.Duration // claimDeadline = coordinationTime + ClaimWindow
	EarlyCancelTolerance time.Duration // cancellation accepted from coordinationTime - tolerance
}

// DefaultTiming returns the timing the protocol ships with.
func DefaultTiming() Timing {
	return Timing{
		MinLeadTime:          DefaultMinLeadTime,
		ClaimWindow:          DefaultClaimWindow,
		EarlyCancelTolerance: DefaultEarlyCancelTolerance,
	}
}

// Validate checks the timing parameters.
func (t Timing) Validate() error {
	if t.MinLeadTime < 0 {
		return fmt.Errorf("min lead time cannot be negative")
	}
	if t.ClaimWindow <= 0 {
		return fmt.Errorf("claim window must be positive")
	}
	if t.EarlyCancelTolerance < 0 {
		return fmt.Errorf("early cancel tolerance cannot be negative")
	}
	return nil
}

// Config holds engine configuration.
type Config struct {
	Verifier        proof.Verifier
	Fees            *fees.Calculator
	Clock           Clock
	Timing          Timing
	Treasury        common.Address
	RelistOnTimeout bool // a timed-out Pending order releases its reservation for a new listing
	Logger          *zap.Logger

	// Optional; fresh instances are created when nil.
	Store  *Store
	Ledger *Ledger
	Events *EventLog
}

// Engine runs the listing, order and settlement state machine. Each mutating
// operation holds its listing's lock for its whole duration, so operations on
// different listings run concurrently.
type Engine struct {
	verifier proof.Verifier
	fees     *fees.Calculator
	clock    Clock
	timing   Timing
	treasury common.Address
	relist   bool
	logger   *zap.Logger

	store  *Store
	ledger *Ledger
	events *EventLog

	locks    [lockStripes]sync.Mutex
	commitMu sync.Mutex
}

// New creates an engine.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if cfg.Fees == nil {
		return nil, fmt.Errorf("fee calculator cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Treasury == (common.Address{}) {
		return nil, fmt.Errorf("treasury address is required")
	}
	err := cfg.Timing.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate timing: %w", err)
	}

	e := &Engine{
		verifier: cfg.Verifier,
		fees:     cfg.Fees,
		clock:    cfg.Clock,
		timing:   cfg.Timing,
		treasury: cfg.Treasury,
		relist:   cfg.RelistOnTimeout,
		logger:   cfg.Logger,
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		events:   cfg.Events,
	}
	if e.clock == nil {
		e.clock = ClockFunc(time.Now)
	}
	if e.store == nil {
		e.store = NewStore()
	}
	if e.ledger == nil {
		e.ledger = NewLedger()
	}
	if e.events == nil {
		e.events = NewEventLog()
	}
	return e, nil
}

// Params is the read-only protocol configuration.
type Params struct {
	Fees            fees.Params
	Timing          Timing
	Treasury        common.Address
	RelistOnTimeout bool
}

// Params returns the protocol configuration.
func (e *Engine) Params() Params {
	return Params{
		Fees:            e.fees.Params(),
		Timing:          e.timing,
		Treasury:        e.treasury,
		RelistOnTimeout: e.relist,
	}
}

// Fees returns the engine's fee calculator.
func (e *Engine) Fees() *fees.Calculator {
	return e.fees
}

// Now returns the engine clock's time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Events returns the engine's event log.
func (e *Engine) Events() *EventLog {
	return e.events
}

// Listing returns a copy of the listing.
func (e *Engine) Listing(id common.Hash) (*Listing, error) {
	l, ok := e.store.Listing(id)
	if !ok {
		return nil, newError(ErrListingNotFound, id.Hex(), "listing not found")
	}
	return l, nil
}

// Order returns a copy of the order.
func (e *Engine) Order(id common.Hash) (*Order, error) {
	o, ok := e.store.Order(id)
	if !ok {
		return nil, newError(ErrOrderNotFound, id.Hex(), "order not found")
	}
	return o, nil
}

// Listings returns listings in creation order, filtered by status unless
// status is empty.
func (e *Engine) Listings(status ListingStatus) []*Listing {
	return e.store.Listings(func(l *Listing) bool {
		return status == "" || l.Status == status
	})
}

// OrdersForListing returns every order that ever referenced listingID.
func (e *Engine) OrdersForListing(listingID common.Hash) []*Order {
	return e.store.Orders(func(o *Order) bool { return o.ListingID == listingID })
}

// Balance is an account's ledger position.
type Balance struct {
	Address   common.Address
	Available *big.Int
	Escrowed  *big.Int
}

// Balance returns addr's spendable and escrowed amounts.
func (e *Engine) Balance(addr common.Address) Balance {
	return Balance{
		Address:   addr,
		Available: e.ledger.Available(addr),
		Escrowed:  e.ledger.Escrowed(addr),
	}
}

// Credit mints funds into addr. It backs the development faucet and tests.
func (e *Engine) Credit(addr common.Address, amount *big.Int) error {
	err := e.ledger.Credit(addr, amount)
	if err != nil {
		return &Error{Kind: KindValidation, Code: CodeInvalidAmount, EntityID: addr.Hex(), Message: "invalid credit", Err: err}
	}
	e.logger.Info("account-credited",
		zap.String("address", addr.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// Store exposes the store for read-only inspection.
func (e *Engine) Store() *Store {
	return e.store
}

// Ledger exposes the ledger for read-only inspection.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// DueOrders returns non-terminal orders whose claim deadline has passed.
func (e *Engine) DueOrders(now time.Time) []*Order {
	return e.store.Orders(func(o *Order) bool {
		return (o.Status == OrderPending || o.Status == OrderClaiming) && now.After(o.ClaimDeadline)
	})
}

// ExpiredListings returns Active listings past their expiry.
func (e *Engine) ExpiredListings(now time.Time) []*Listing {
	return e.store.Listings(func(l *Listing) bool {
		return l.Status == ListingActive && now.After(l.Expiry)
	})
}

// lockStripes bounds the number of entity locks. Listing ids and
// reservation hashes are keccak outputs, so their leading bytes spread
// evenly across stripes. Unrelated entities that share a stripe only
// serialize.
const lockStripes = 1024

func lockStripe(key common.Hash) int {
	return int(binary.BigEndian.Uint16(key[:2])) % lockStripes
}

// lock takes the stripe lock for a listing id or reservation hash. No
// operation holds more than one.
func (e *Engine) lock(key common.Hash) func() {
	mu := &e.locks[lockStripe(key)]
	mu.Lock()
	return mu.Unlock
}

// commit applies the staged store change and ledger movements as one unit.
func (e *Engine) commit(c *change, tx *Tx, now time.Time) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return e.commitLocked(c, tx, now)
}

// commitNew commits a new entity whose id is derived from owner's nonce.
// build runs under the commit lock with the nonce the commit will consume,
// so a rejected commit leaves the nonce untouched.
func (e *Engine) commitNew(owner common.Address, now time.Time, build func(nonce uint64) (*change, *Tx)) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	c, tx := build(e.store.Nonce(owner))
	c.nonceOwner = &owner
	return e.commitLocked(c, tx, now)
}

func (e *Engine) commitLocked(c *change, tx *Tx, now time.Time) error {
	err := e.store.check(c)
	if err != nil {
		return err
	}
	if tx != nil {
		err = e.ledger.Commit(tx)
		if err != nil {
			entity := ""
			if c.order != nil {
				entity = c.order.ID.Hex()
			} else if c.listing != nil {
				entity = c.listing.ID.Hex()
			}
			return &Error{
				Kind:     KindFunds,
				Code:     CodeInsufficientFunds,
				EntityID: entity,
				Message:  "ledger rejected transfer",
				Err:      err,
			}
		}
	}
	e.store.apply(c, now)
	return nil
}

func (e *Engine) emit(evt Event) {
	stored := e.events.Append(evt)
	EventsTotal.WithLabelValues(stored.Type).Inc()
}

// observe records operation metrics and logs rejections.
func (e *Engine) observe(op string, start time.Time, err error) {
	OperationDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		OperationsTotal.WithLabelValues(op, "ok").Inc()
		return
	}
	result := "error"
	var ee *Error
	if errors.As(err, &ee) {
		result = string(ee.Kind)
	}
	OperationsTotal.WithLabelValues(op, result).Inc()
	e.logger.Debug("operation-rejected",
		zap.String("operation", op),
		zap.Error(err))
}

func deriveID(parts ...[]byte) common.Hash {
	return crypto.Keccak256Hash(parts...)
}

func nonceBytes(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// ListingID derives a listing id from the seller, reservation and nonce.
func ListingID(seller common.Address, reservationHash common.Hash, nonce uint64) common.Hash {
	return deriveID(seller.Bytes(), reservationHash.Bytes(), nonceBytes(nonce))
}

// OrderID derives an order id from the listing, buyer and nonce.
func OrderID(listingID common.Hash, buyer common.Address, nonce uint64) common.Hash {
	return deriveID(listingID.Bytes(), buyer.Bytes(), nonceBytes(nonce))
}
