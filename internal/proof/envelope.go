package proof

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
)

// Proof is the opaque attestation submitted by callers.
type Proof []byte

// Digest identifies the proof by the hash of its signed payload.
func (p Proof) Digest() (common.Hash, error) {
	env, err := decodeEnvelope(p)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(env.Payload), nil
}

// Payload kinds, as produced by the email relayer.
const (
	KindReservation  = "reservation"
	KindCancellation = "cancellation"
	KindBooking      = "booking"
)

// Payload is the attested statement. Type selects which reservation id field
// is meaningful.
type Payload struct {
	Type                  string `json:"type"`
	Platform              string `json:"platform"`
	ReservationID         string `json:"reservation_id,omitempty"`
	OriginalReservationID string `json:"original_reservation_id,omitempty"`
	NewReservationID      string `json:"new_reservation_id,omitempty"`
	RestaurantName        string `json:"restaurant_name"`
	ReservationTime       int64  `json:"reservation_time"`
	PartySize             int    `json:"party_size"`
	EventTime             int64  `json:"event_time"`
	EmailHash             string `json:"email_hash,omitempty"`
	IssuedAt              int64  `json:"issued_at"`
}

// Envelope is the wire form of a Proof.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

func decodeEnvelope(p Proof) (*Envelope, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty proof", ErrInvalidProof)
	}
	var env Envelope
	err := json.Unmarshal(p, &env)
	if err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrInvalidProof, err)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidProof)
	}
	return &env, nil
}

// Signer attests payloads with a secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse attester key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate attester key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the attester address verifiers must trust.
func (s *Signer) Address() common.Address {
	return s.address
}

// HexKey returns the private key as 0x-prefixed hex.
func (s *Signer) HexKey() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}

// Sign encodes payload and returns the signed proof. IssuedAt defaults to
// now when unset.
func (s *Signer) Sign(payload Payload) (Proof, error) {
	if payload.IssuedAt == 0 {
		payload.IssuedAt = time.Now().Unix()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	sig, err := crypto.Sign(crypto.Keccak256(raw), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	out, err := json.Marshal(Envelope{
		Payload:   raw,
		Signature: hexutil.Encode(sig),
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return Proof(out), nil
}
