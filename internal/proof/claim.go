package proof

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Platform is the enumerated source of a reservation.
type Platform string

const (
	PlatformOpenTable Platform = "opentable"
	PlatformResy      Platform = "resy"
)

// ParsePlatform normalizes s into a supported platform.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformOpenTable:
		return PlatformOpenTable, nil
	case PlatformResy:
		return PlatformResy, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", s)
	}
}

// EventType is the real-world event a claim attests to.
type EventType string

const (
	EventConfirmation EventType = "confirmation"
	EventCancellation EventType = "cancellation"
	EventNewBooking   EventType = "new_booking"
)

var (
	ErrInvalidProof    = errors.New("proof: invalid proof")
	ErrWrongEventType  = errors.New("proof: unexpected event type")
	ErrHashMismatch    = errors.New("proof: reservation hash mismatch")
	ErrContextMismatch = errors.New("proof: reservation context mismatch")
)

// VerifiedClaim is the normalized result of a successful verification. The
// escrow core only ever reads this type, never the raw proof.
type VerifiedClaim struct {
	Platform        Platform
	EventType       EventType
	ReservationHash common.Hash // hash of the reservation the event concerns
	ContextHash     common.Hash // hash of platform, venue, slot and party size
	Timestamp       time.Time   // when the event happened
	Fields          map[string]string
	Digest          common.Hash // unique per proof, used for replay protection
	Attester        common.Address
}

// Clone returns a deep copy of the claim.
func (c *VerifiedClaim) Clone() *VerifiedClaim {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Fields = make(map[string]string, len(c.Fields))
	for k, v := range c.Fields {
		clone.Fields[k] = v
	}
	return &clone
}

// Expectation is what a caller requires of a claim. Zero hashes match
// anything.
type Expectation struct {
	EventType       EventType
	ReservationHash common.Hash
	ContextHash     common.Hash
}

// Check reports whether claim satisfies the expectation.
func (e Expectation) Check(claim *VerifiedClaim) error {
	if claim == nil {
		return ErrInvalidProof
	}
	if claim.EventType != e.EventType {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongEventType, claim.EventType, e.EventType)
	}
	if e.ReservationHash != (common.Hash{}) && claim.ReservationHash != e.ReservationHash {
		return fmt.Errorf("%w: got %s", ErrHashMismatch, claim.ReservationHash.Hex())
	}
	if e.ContextHash != (common.Hash{}) && claim.ContextHash != e.ContextHash {
		return fmt.Errorf("%w: got %s", ErrContextMismatch, claim.ContextHash.Hex())
	}
	return nil
}

// Authenticator checks a proof's authenticity and normalizes it into a
// claim without applying any expectation.
type Authenticator interface {
	Authenticate(ctx context.Context, p Proof) (*VerifiedClaim, error)
}

// Verifier validates a proof against an expectation.
type Verifier interface {
	Verify(ctx context.Context, p Proof, expect Expectation) (*VerifiedClaim, error)
}

// ReservationHash commits to one reservation on one platform.
func ReservationHash(platform Platform, reservationID string) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(platform),
		[]byte{0},
		[]byte(strings.TrimSpace(reservationID)),
	)
}

// ContextHash commits to the reservation context: the same table at the same
// time for the same party, independent of which reservation id holds it.
func ContextHash(platform Platform, venue string, slot time.Time, partySize int) common.Hash {
	var slotBuf, partyBuf [8]byte
	binary.BigEndian.PutUint64(slotBuf[:], uint64(slot.Unix()))
	binary.BigEndian.PutUint64(partyBuf[:], uint64(partySize))
	return crypto.Keccak256Hash(
		[]byte(platform),
		[]byte{0},
		[]byte(strings.ToLower(strings.TrimSpace(venue))),
		[]byte{0},
		slotBuf[:],
		partyBuf[:],
	)
}
