package proof

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T) (*AttestationVerifier, *Signer) {
	t.Helper()
	signer, err := GenerateSigner()
	require.NoError(t, err)

	v, err := NewAttestationVerifier(&AttestationConfig{
		Attesters:    []common.Address{signer.Address()},
		MaxClockSkew: 5 * time.Minute,
		Now:          func() time.Time { return testNow },
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return v, signer
}

func confirmationPayload() Payload {
	return Payload{
		Type:            KindReservation,
		Platform:        "opentable",
		ReservationID:   "OT-12345",
		RestaurantName:  "Le Bernardin",
		ReservationTime: testNow.Add(48 * time.Hour).Unix(),
		PartySize:       2,
		EventTime:       testNow.Add(-time.Hour).Unix(),
		IssuedAt:        testNow.Unix(),
	}
}

func TestAttestationVerifier_Confirmation(t *testing.T) {
	v, signer := newTestVerifier(t)

	p, err := signer.Sign(confirmationPayload())
	require.NoError(t, err)

	slot := testNow.Add(48 * time.Hour)
	claim, err := v.Verify(context.Background(), p, Expectation{
		EventType:       EventConfirmation,
		ReservationHash: ReservationHash(PlatformOpenTable, "OT-12345"),
		ContextHash:     ContextHash(PlatformOpenTable, "le bernardin", slot, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, PlatformOpenTable, claim.Platform)
	assert.Equal(t, EventConfirmation, claim.EventType)
	assert.Equal(t, signer.Address(), claim.Attester)
	assert.Equal(t, "OT-12345", claim.Fields["reservation_id"])
	assert.Equal(t, "2", claim.Fields["party_size"])

	digest, err := p.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, claim.Digest)
}

func TestAttestationVerifier_EventKinds(t *testing.T) {
	v, signer := newTestVerifier(t)

	tests := []struct {
		name      string
		mutate    func(p *Payload)
		wantEvent EventType
		wantID    string
	}{
		{
			name:      "reservation",
			mutate:    func(p *Payload) {},
			wantEvent: EventConfirmation,
			wantID:    "OT-12345",
		},
		{
			name: "cancellation",
			mutate: func(p *Payload) {
				p.Type = KindCancellation
				p.ReservationID = ""
				p.OriginalReservationID = "OT-12345"
			},
			wantEvent: EventCancellation,
			wantID:    "OT-12345",
		},
		{
			name: "booking",
			mutate: func(p *Payload) {
				p.Type = KindBooking
				p.ReservationID = ""
				p.NewReservationID = "OT-99999"
			},
			wantEvent: EventNewBooking,
			wantID:    "OT-99999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := confirmationPayload()
			tt.mutate(&payload)
			p, err := signer.Sign(payload)
			require.NoError(t, err)

			claim, err := v.Authenticate(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, claim.EventType)
			assert.Equal(t, ReservationHash(PlatformOpenTable, tt.wantID), claim.ReservationHash)
		})
	}
}

func TestAttestationVerifier_Rejections(t *testing.T) {
	v, signer := newTestVerifier(t)
	stranger, err := GenerateSigner()
	require.NoError(t, err)

	good, err := signer.Sign(confirmationPayload())
	require.NoError(t, err)

	untrusted, err := stranger.Sign(confirmationPayload())
	require.NoError(t, err)

	future := confirmationPayload()
	future.IssuedAt = testNow.Add(time.Hour).Unix()
	futureProof, err := signer.Sign(future)
	require.NoError(t, err)

	badPlatform := confirmationPayload()
	badPlatform.Platform = "tock"
	badPlatformProof, err := signer.Sign(badPlatform)
	require.NoError(t, err)

	// Flip the payload after signing so the recovered signer changes.
	var env Envelope
	require.NoError(t, json.Unmarshal(good, &env))
	tamperedPayload := confirmationPayload()
	tamperedPayload.PartySize = 8
	env.Payload, err = json.Marshal(tamperedPayload)
	require.NoError(t, err)
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	tests := []struct {
		name  string
		proof Proof
	}{
		{name: "empty", proof: nil},
		{name: "garbage", proof: Proof("not json")},
		{name: "missing-signature", proof: Proof(`{"payload":{"type":"reservation"}}`)},
		{name: "untrusted-attester", proof: untrusted},
		{name: "issued-in-future", proof: futureProof},
		{name: "unsupported-platform", proof: badPlatformProof},
		{name: "tampered-payload", proof: Proof(tampered)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Authenticate(context.Background(), tt.proof)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProof), "expected ErrInvalidProof, got %v", err)
		})
	}
}

func TestAttestationVerifier_ExpectationMismatch(t *testing.T) {
	v, signer := newTestVerifier(t)
	p, err := signer.Sign(confirmationPayload())
	require.NoError(t, err)

	tests := []struct {
		name   string
		expect Expectation
		want   error
	}{
		{
			name:   "wrong-event",
			expect: Expectation{EventType: EventCancellation},
			want:   ErrWrongEventType,
		},
		{
			name: "wrong-reservation",
			expect: Expectation{
				EventType:       EventConfirmation,
				ReservationHash: ReservationHash(PlatformOpenTable, "OT-other"),
			},
			want: ErrHashMismatch,
		},
		{
			name: "wrong-context",
			expect: Expectation{
				EventType:   EventConfirmation,
				ContextHash: ContextHash(PlatformOpenTable, "Le Bernardin", testNow, 4),
			},
			want: ErrContextMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), p, tt.expect)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewAttestationVerifier_Validation(t *testing.T) {
	_, err := NewAttestationVerifier(nil)
	assert.Error(t, err)

	_, err = NewAttestationVerifier(&AttestationConfig{Logger: zap.NewNop()})
	assert.Error(t, err)

	_, err = NewAttestationVerifier(&AttestationConfig{Attesters: []common.Address{{1}}})
	assert.Error(t, err)
}

func TestHashes(t *testing.T) {
	slot := time.Date(2026, 3, 16, 19, 30, 0, 0, time.UTC)

	assert.Equal(t,
		ReservationHash(PlatformResy, "R-1"),
		ReservationHash(PlatformResy, " R-1 "),
		"reservation id whitespace must not change the hash")
	assert.NotEqual(t,
		ReservationHash(PlatformResy, "R-1"),
		ReservationHash(PlatformOpenTable, "R-1"),
		"platform is part of the hash")

	assert.Equal(t,
		ContextHash(PlatformResy, "Carbone", slot, 2),
		ContextHash(PlatformResy, "  CARBONE ", slot, 2),
		"venue comparison is case-insensitive")
	assert.NotEqual(t,
		ContextHash(PlatformResy, "Carbone", slot, 2),
		ContextHash(PlatformResy, "Carbone", slot.Add(time.Minute), 2))
}

func TestSigner_RoundTripKey(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	again, err := NewSigner(s.HexKey())
	require.NoError(t, err)
	assert.Equal(t, s.Address(), again.Address())

	_, err = NewSigner("0xnothex")
	assert.Error(t, err)
}
