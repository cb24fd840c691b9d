package escrow

import (
	"errors"
	"fmt"

	"github.com/mselser95/reservation-escrow/internal/proof"
)

// Kind classifies a rejection. Every rejection leaves state untouched.
type Kind string

const (
	KindValidation Kind = "validation"
	KindProof      Kind = "proof"
	KindState      Kind = "state"
	KindFunds      Kind = "funds"
	KindNotFound   Kind = "not_found"
)

// Code identifies the specific rejection reason.
type Code string

const (
	CodeInvalidPrice            Code = "INVALID_PRICE"
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeInvalidExpiry           Code = "INVALID_EXPIRY"
	CodeInvalidCoordinationTime Code = "INVALID_COORDINATION_TIME"
	CodeTooEarly                Code = "TOO_EARLY"
	CodeTooLate                 Code = "TOO_LATE"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeSelfPurchase            Code = "SELF_PURCHASE"
	CodeInvalidProof            Code = "INVALID_PROOF"
	CodeWrongEventType          Code = "WRONG_EVENT_TYPE"
	CodeHashMismatch            Code = "HASH_MISMATCH"
	CodeContextMismatch         Code = "CONTEXT_MISMATCH"
	CodeStaleEvent              Code = "STALE_EVENT"
	CodeDuplicateListing        Code = "DUPLICATE_LISTING"
	CodeProofReplayed           Code = "PROOF_REPLAYED"
	CodeListingUnavailable      Code = "LISTING_UNAVAILABLE"
	CodeInvalidStatus           Code = "INVALID_STATUS"
	CodeNotExpired              Code = "NOT_EXPIRED"
	CodeInsufficientFunds       Code = "INSUFFICIENT_FUNDS"
	CodeListingNotFound         Code = "LISTING_NOT_FOUND"
	CodeOrderNotFound           Code = "ORDER_NOT_FOUND"
)

// Error is a typed escrow rejection carrying the affected entity.
type Error struct {
	Kind     Kind
	Code     Code
	EntityID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error (%s)", e.Kind, e.Code)
	if e.EntityID != "" {
		msg += " on " + e.EntityID
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Code when the target sets one, so both
// errors.Is(err, ErrState) and errors.Is(err, ErrListingUnavailable) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Kind sentinels.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrProof      = &Error{Kind: KindProof}
	ErrState      = &Error{Kind: KindState}
	ErrFunds      = &Error{Kind: KindFunds}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

// Code sentinels.
var (
	ErrInvalidPrice            = &Error{Kind: KindValidation, Code: CodeInvalidPrice}
	ErrInvalidAmount           = &Error{Kind: KindValidation, Code: CodeInvalidAmount}
	ErrInvalidExpiry           = &Error{Kind: KindValidation, Code: CodeInvalidExpiry}
	ErrInvalidCoordinationTime = &Error{Kind: KindValidation, Code: CodeInvalidCoordinationTime}
	ErrTooEarly                = &Error{Kind: KindValidation, Code: CodeTooEarly}
	ErrTooLate                 = &Error{Kind: KindValidation, Code: CodeTooLate}
	ErrUnauthorized            = &Error{Kind: KindValidation, Code: CodeUnauthorized}
	ErrSelfPurchase            = &Error{Kind: KindValidation, Code: CodeSelfPurchase}
	ErrInvalidProof            = &Error{Kind: KindProof, Code: CodeInvalidProof}
	ErrWrongEventType          = &Error{Kind: KindProof, Code: CodeWrongEventType}
	ErrHashMismatch            = &Error{Kind: KindProof, Code: CodeHashMismatch}
	ErrContextMismatch         = &Error{Kind: KindProof, Code: CodeContextMismatch}
	ErrStaleEvent              = &Error{Kind: KindProof, Code: CodeStaleEvent}
	ErrDuplicateListing        = &Error{Kind: KindProof, Code: CodeDuplicateListing}
	ErrProofReplayed           = &Error{Kind: KindProof, Code: CodeProofReplayed}
	ErrListingUnavailable      = &Error{Kind: KindState, Code: CodeListingUnavailable}
	ErrInvalidStatus           = &Error{Kind: KindState, Code: CodeInvalidStatus}
	ErrNotExpired              = &Error{Kind: KindState, Code: CodeNotExpired}
	ErrInsufficientFunds       = &Error{Kind: KindFunds, Code: CodeInsufficientFunds}
	ErrListingNotFound         = &Error{Kind: KindNotFound, Code: CodeListingNotFound}
	ErrOrderNotFound           = &Error{Kind: KindNotFound, Code: CodeOrderNotFound}
)

func newError(sentinel *Error, entityID string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     sentinel.Kind,
		Code:     sentinel.Code,
		EntityID: entityID,
		Message:  fmt.Sprintf(format, args...),
	}
}

// proofError maps a verifier failure onto the escrow taxonomy.
func proofError(err error, entityID string) *Error {
	sentinel := ErrInvalidProof
	switch {
	case errors.Is(err, proof.ErrWrongEventType):
		sentinel = ErrWrongEventType
	case errors.Is(err, proof.ErrHashMismatch):
		sentinel = ErrHashMismatch
	case errors.Is(err, proof.ErrContextMismatch):
		sentinel = ErrContextMismatch
	}
	return &Error{
		Kind:     sentinel.Kind,
		Code:     sentinel.Code,
		EntityID: entityID,
		Message:  "proof rejected",
		Err:      err,
	}
}
