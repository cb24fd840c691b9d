package proof

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// AttestationVerifier accepts proofs signed by a trusted attester (the
// email relayer) and normalizes their payload into a VerifiedClaim.
type AttestationVerifier struct {
	attesters    map[common.Address]struct{}
	maxClockSkew time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// AttestationConfig holds verifier configuration.
type AttestationConfig struct {
	Attesters    []common.Address
	MaxClockSkew time.Duration // tolerated issued-at drift into the future
	Now          func() time.Time
	Logger       *zap.Logger
}

// NewAttestationVerifier creates a verifier trusting cfg.Attesters.
func NewAttestationVerifier(cfg *AttestationConfig) (*AttestationVerifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Attesters) == 0 {
		return nil, fmt.Errorf("at least one attester is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	attesters := make(map[common.Address]struct{}, len(cfg.Attesters))
	for _, a := range cfg.Attesters {
		attesters[a] = struct{}{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &AttestationVerifier{
		attesters:    attesters,
		maxClockSkew: cfg.MaxClockSkew,
		now:          now,
		logger:       cfg.Logger,
	}, nil
}

// Verify authenticates p and checks it against expect.
func (v *AttestationVerifier) Verify(ctx context.Context, p Proof, expect Expectation) (*VerifiedClaim, error) {
	claim, err := v.Authenticate(ctx, p)
	if err != nil {
		return nil, err
	}

	err = expect.Check(claim)
	if err != nil {
		VerificationsTotal.WithLabelValues(string(expect.EventType), "mismatch").Inc()
		v.logger.Debug("proof-expectation-mismatch",
			zap.String("digest", claim.Digest.Hex()),
			zap.String("expected-event", string(expect.EventType)),
			zap.Error(err))
		return nil, err
	}

	VerificationsTotal.WithLabelValues(string(expect.EventType), "ok").Inc()
	return claim, nil
}

// Authenticate checks the envelope signature and normalizes the payload.
func (v *AttestationVerifier) Authenticate(ctx context.Context, p Proof) (*VerifiedClaim, error) {
	env, err := decodeEnvelope(p)
	if err != nil {
		VerificationsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, err
	}

	sig, err := hexutil.Decode(env.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		VerificationsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, fmt.Errorf("%w: bad signature encoding", ErrInvalidProof)
	}

	digest := crypto.Keccak256Hash(env.Payload)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		VerificationsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		return nil, fmt.Errorf("%w: recover signer: %v", ErrInvalidProof, err)
	}
	attester := crypto.PubkeyToAddress(*pub)
	if _, ok := v.attesters[attester]; !ok {
		VerificationsTotal.WithLabelValues("unknown", "untrusted").Inc()
		v.logger.Warn("proof-untrusted-attester", zap.String("attester", attester.Hex()))
		return nil, fmt.Errorf("%w: untrusted attester %s", ErrInvalidProof, attester.Hex())
	}

	var payload Payload
	err = json.Unmarshal(env.Payload, &payload)
	if err != nil {
		VerificationsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, fmt.Errorf("%w: decode payload: %v", ErrInvalidProof, err)
	}

	issued := time.Unix(payload.IssuedAt, 0)
	if v.maxClockSkew > 0 && issued.After(v.now().Add(v.maxClockSkew)) {
		VerificationsTotal.WithLabelValues("unknown", "future").Inc()
		return nil, fmt.Errorf("%w: issued in the future", ErrInvalidProof)
	}

	claim, err := Normalize(payload)
	if err != nil {
		VerificationsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, err
	}
	claim.Digest = digest
	claim.Attester = attester

	return claim, nil
}

// Normalize turns a payload into the typed claim variant.
func Normalize(p Payload) (*VerifiedClaim, error) {
	platform, err := ParsePlatform(p.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if strings.TrimSpace(p.RestaurantName) == "" {
		return nil, fmt.Errorf("%w: missing restaurant name", ErrInvalidProof)
	}
	if p.ReservationTime <= 0 {
		return nil, fmt.Errorf("%w: missing reservation time", ErrInvalidProof)
	}
	if p.PartySize <= 0 {
		return nil, fmt.Errorf("%w: party size must be positive", ErrInvalidProof)
	}

	var (
		eventType     EventType
		reservationID string
	)
	switch p.Type {
	case KindReservation:
		eventType, reservationID = EventConfirmation, p.ReservationID
	case KindCancellation:
		eventType, reservationID = EventCancellation, p.OriginalReservationID
	case KindBooking:
		eventType, reservationID = EventNewBooking, p.NewReservationID
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q", ErrInvalidProof, p.Type)
	}
	if strings.TrimSpace(reservationID) == "" {
		return nil, fmt.Errorf("%w: missing reservation id for %s", ErrInvalidProof, p.Type)
	}

	slot := time.Unix(p.ReservationTime, 0).UTC()
	eventTime := p.EventTime
	if eventTime == 0 {
		eventTime = p.IssuedAt
	}

	return &VerifiedClaim{
		Platform:        platform,
		EventType:       eventType,
		ReservationHash: ReservationHash(platform, reservationID),
		ContextHash:     ContextHash(platform, p.RestaurantName, slot, p.PartySize),
		Timestamp:       time.Unix(eventTime, 0).UTC(),
		Fields: map[string]string{
			"reservation_id": strings.TrimSpace(reservationID),
			"venue":          strings.TrimSpace(p.RestaurantName),
			"slot_time":      strconv.FormatInt(p.ReservationTime, 10),
			"party_size":     strconv.Itoa(p.PartySize),
			"email_hash":     p.EmailHash,
		},
	}, nil
}
