package escrow

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store holds listings, orders and the reservation and proof indexes. It is
// owned by one Engine; reads return copies.
type Store struct {
	mu           sync.RWMutex
	listings     map[common.Hash]*Listing
	orders       map[common.Hash]*Order
	reservations map[common.Hash]common.Hash // reservation hash -> listing id
	burned       map[common.Hash]struct{}    // reservations cancelled on-platform
	nullifiers   map[common.Hash]struct{}    // consumed proof digests
	nonces       map[common.Address]uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		listings:     make(map[common.Hash]*Listing),
		orders:       make(map[common.Hash]*Order),
		reservations: make(map[common.Hash]common.Hash),
		burned:       make(map[common.Hash]struct{}),
		nullifiers:   make(map[common.Hash]struct{}),
		nonces:       make(map[common.Address]uint64),
	}
}

// change is the staged store side of one operation.
type change struct {
	listing            *Listing
	order              *Order
	bindReservation    bool
	releaseReservation bool
	burnReservation    bool
	consume            []common.Hash
	nonceOwner         *common.Address // advance this account's nonce
}

// Listing returns a copy of the listing, if present.
func (s *Store) Listing(id common.Hash) (*Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	return l.Clone(), ok
}

// Order returns a copy of the order, if present.
func (s *Store) Order(id common.Hash) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o.Clone(), ok
}

// Listings returns copies of every listing accepted by keep, oldest first.
func (s *Store) Listings(keep func(*Listing) bool) []*Listing {
	s.mu.RLock()
	out := make([]*Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if keep == nil || keep(l) {
			out = append(out, l.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Orders returns copies of every order accepted by keep, oldest first.
func (s *Store) Orders(keep func(*Order) bool) []*Order {
	s.mu.RLock()
	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep == nil || keep(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ReservationTaken reports whether hash is bound to a live or completed
// listing, or was burned by an accepted cancellation.
func (s *Store) ReservationTaken(hash common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationTakenLocked(hash)
}

func (s *Store) reservationTakenLocked(hash common.Hash) bool {
	if _, ok := s.burned[hash]; ok {
		return true
	}
	id, ok := s.reservations[hash]
	if !ok {
		return false
	}
	l, ok := s.listings[id]
	return ok && l.Status != ListingCancelled
}

// Consumed reports whether a proof digest was already used.
func (s *Store) Consumed(digest common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nullifiers[digest]
	return ok
}

// Nonce returns the nonce addr's next listing or order id is derived from.
func (s *Store) Nonce(addr common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[addr]
}

// check re-validates the cross-entity indexes a change depends on.
func (s *Store) check(c *change) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range c.consume {
		if _, ok := s.nullifiers[d]; ok {
			return newError(ErrProofReplayed, d.Hex(), "proof already consumed")
		}
	}
	if c.bindReservation && s.reservationTakenLocked(c.listing.ReservationHash) {
		return newError(ErrDuplicateListing, c.listing.ReservationHash.Hex(), "reservation already listed")
	}
	return nil
}

func (s *Store) apply(c *change, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.listing != nil {
		l := c.listing.Clone()
		l.UpdatedAt = now
		s.listings[l.ID] = l
		if c.bindReservation {
			s.reservations[l.ReservationHash] = l.ID
		}
		if c.releaseReservation && s.reservations[l.ReservationHash] == l.ID {
			delete(s.reservations, l.ReservationHash)
		}
		if c.burnReservation {
			s.burned[l.ReservationHash] = struct{}{}
		}
	}
	if c.order != nil {
		o := c.order.Clone()
		o.UpdatedAt = now
		s.orders[o.ID] = o
	}
	for _, d := range c.consume {
		s.nullifiers[d] = struct{}{}
	}
	if c.nonceOwner != nil {
		s.nonces[*c.nonceOwner]++
	}
}
