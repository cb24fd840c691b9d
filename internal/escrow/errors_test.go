package escrow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mselser95/reservation-escrow/internal/proof"
)

func TestError_IsMatchesKindAndCode(t *testing.T) {
	err := newError(ErrListingUnavailable, "0xabc", "listing is matched")

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{name: "same-code", target: ErrListingUnavailable, want: true},
		{name: "kind-only", target: ErrState, want: true},
		{name: "other-code-same-kind", target: ErrInvalidStatus, want: false},
		{name: "other-kind", target: ErrValidation, want: false},
		{name: "unrelated", target: errors.New("x"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_AsExposesEntity(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", newError(ErrTooLate, "0xorder", "deadline passed"))

	var ee *Error
	if !errors.As(wrapped, &ee) {
		t.Fatal("errors.As failed")
	}
	if ee.EntityID != "0xorder" || ee.Kind != KindValidation || ee.Code != CodeTooLate {
		t.Errorf("unexpected error fields: %+v", ee)
	}
}

func TestProofError_Mapping(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want *Error
	}{
		{name: "invalid", in: proof.ErrInvalidProof, want: ErrInvalidProof},
		{name: "event-type", in: fmt.Errorf("%w: got x", proof.ErrWrongEventType), want: ErrWrongEventType},
		{name: "hash", in: proof.ErrHashMismatch, want: ErrHashMismatch},
		{name: "context", in: proof.ErrContextMismatch, want: ErrContextMismatch},
		{name: "unknown", in: errors.New("boom"), want: ErrInvalidProof},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := proofError(tt.in, "0x1")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want code %s", err, tt.want.Code)
			}
			if !errors.Is(err, tt.in) {
				t.Error("cause should stay reachable through Unwrap")
			}
		})
	}
}
