package testutil

import (
	"crypto/ecdsa"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/mselser95/reservation-escrow/internal/proof"
)

// T0 is the reference instant test timelines are built from.
var T0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Address returns a deterministic address whose last byte is n.
func Address(n byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = n
	return a
}

// Key returns a deterministic private key for test account n.
func Key(n byte) *ecdsa.PrivateKey {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("test-account"), []byte{n}))
	if err != nil {
		panic(err)
	}
	return key
}

// KeyAddress returns the address of key.
func KeyAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Reservation describes an off-chain booking used to build proofs.
type Reservation struct {
	Platform  string
	ID        string
	Venue     string
	Slot      time.Time
	PartySize int
}

// CreateTestReservation returns a two-person OpenTable booking at slot.
func CreateTestReservation(id string, slot time.Time) Reservation {
	return Reservation{
		Platform:  "opentable",
		ID:        id,
		Venue:     "Le Bernardin",
		Slot:      slot,
		PartySize: 2,
	}
}

// Hash returns the reservation hash the verifier derives for r.
func (r Reservation) Hash() common.Hash {
	platform, _ := proof.ParsePlatform(r.Platform)
	return proof.ReservationHash(platform, r.ID)
}

// Attester signs fixture proofs with a throwaway key.
type Attester struct {
	Signer *proof.Signer
}

// NewAttester creates an attester with a fresh key.
func NewAttester(t testing.TB) *Attester {
	t.Helper()
	s, err := proof.GenerateSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	return &Attester{Signer: s}
}

// Verifier returns an AttestationVerifier trusting this attester.
func (a *Attester) Verifier(t testing.TB, clock *Clock) *proof.AttestationVerifier {
	t.Helper()
	v, err := proof.NewAttestationVerifier(&proof.AttestationConfig{
		Attesters:    []common.Address{a.Signer.Address()},
		MaxClockSkew: 5 * time.Minute,
		Now:          clock.Now,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("create verifier: %v", err)
	}
	return v
}

// Confirmation signs a reservation confirmation for r, observed at at.
func (a *Attester) Confirmation(t testing.TB, r Reservation, at time.Time) proof.Proof {
	t.Helper()
	return a.sign(t, proof.Payload{
		Type:          proof.KindReservation,
		ReservationID: r.ID,
	}, r, at)
}

// Cancellation signs a cancellation of r that happened at at.
func (a *Attester) Cancellation(t testing.TB, r Reservation, at time.Time) proof.Proof {
	t.Helper()
	return a.sign(t, proof.Payload{
		Type:                  proof.KindCancellation,
		OriginalReservationID: r.ID,
	}, r, at)
}

// NewBooking signs a new booking of r's table under newID made at at.
func (a *Attester) NewBooking(t testing.TB, r Reservation, newID string, at time.Time) proof.Proof {
	t.Helper()
	return a.sign(t, proof.Payload{
		Type:             proof.KindBooking,
		NewReservationID: newID,
	}, r, at)
}

func (a *Attester) sign(t testing.TB, p proof.Payload, r Reservation, at time.Time) proof.Proof {
	t.Helper()
	p.Platform = r.Platform
	p.RestaurantName = r.Venue
	p.ReservationTime = r.Slot.Unix()
	p.PartySize = r.PartySize
	p.EventTime = at.Unix()
	p.IssuedAt = at.Unix()

	out, err := a.Signer.Sign(p)
	if err != nil {
		t.Fatalf("sign %s proof: %v", p.Type, err)
	}
	return out
}
