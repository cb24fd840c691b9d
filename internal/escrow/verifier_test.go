package escrow

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/internal/proof"
	"github.com/mselser95/reservation-escrow/internal/testutil"
)

func newMockEngine(t *testing.T, v proof.Verifier) *Engine {
	t.Helper()
	calc, err := fees.New(fees.DefaultParams())
	if err != nil {
		t.Fatalf("fees.New() error = %v", err)
	}
	engine, err := New(&Config{
		Verifier: v,
		Fees:     calc,
		Clock:    testutil.NewClock(testutil.T0),
		Timing:   DefaultTiming(),
		Treasury: treasury,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustCredit(t, engine, seller, 10_000)
	return engine
}

func mockClaim(eventType proof.EventType) *proof.VerifiedClaim {
	return &proof.VerifiedClaim{
		Platform:        proof.PlatformOpenTable,
		EventType:       eventType,
		ReservationHash: crypto.Keccak256Hash([]byte("OT-7")),
		ContextHash:     crypto.Keccak256Hash([]byte("ctx")),
		Timestamp:       testutil.T0,
		Fields: map[string]string{
			"venue":      "Carbone",
			"slot_time":  strconv.FormatInt(slot.Unix(), 10),
			"party_size": "4",
		},
		Digest: crypto.Keccak256Hash([]byte("digest")),
	}
}

func TestList_AsksForConfirmation(t *testing.T) {
	mock := testutil.NewMockVerifier(mockClaim(proof.EventConfirmation), nil)
	engine := newMockEngine(t, mock)

	id, err := engine.List(context.Background(), seller, proof.Proof("opaque"), big.NewInt(10_000), expiry)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("verifier calls = %d, want 1", len(calls))
	}
	if calls[0].EventType != proof.EventConfirmation {
		t.Errorf("expected event type = %s, want confirmation", calls[0].EventType)
	}

	l, err := engine.Listing(id)
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if l.Venue != "Carbone" || l.PartySize != 4 || !l.SlotTime.Equal(slot) {
		t.Errorf("listing = %s/%d/%s, want claim fields", l.Venue, l.PartySize, l.SlotTime)
	}
}

func TestList_VerifierErrors(t *testing.T) {
	tests := []struct {
		name    string
		claim   *proof.VerifiedClaim
		err     error
		wantErr error
	}{
		{name: "rejected", err: proof.ErrInvalidProof, wantErr: ErrInvalidProof},
		{name: "cancellation-claim", claim: mockClaim(proof.EventCancellation), wantErr: ErrWrongEventType},
		{name: "unmapped-error", err: errors.New("rpc down"), wantErr: ErrProof},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newMockEngine(t, testutil.NewMockVerifier(tt.claim, tt.err))

			_, err := engine.List(context.Background(), seller, proof.Proof("opaque"), big.NewInt(10_000), expiry)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("List() error = %v, want %v", err, tt.wantErr)
			}
			if got := engine.Balance(seller).Available.Int64(); got != 10_000 {
				t.Errorf("seller available = %d, want untouched 10000", got)
			}
		})
	}
}
