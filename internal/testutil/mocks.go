package testutil

import (
	"context"
	"sync"

	"github.com/mselser95/reservation-escrow/internal/proof"
)

// MockVerifier returns a scripted result and records every expectation it
// was asked to check.
type MockVerifier struct {
	mu    sync.Mutex
	claim *proof.VerifiedClaim
	err   error
	calls []proof.Expectation
}

// NewMockVerifier creates a verifier that returns claim (after checking the
// expectation against it) or err.
func NewMockVerifier(claim *proof.VerifiedClaim, err error) *MockVerifier {
	return &MockVerifier{claim: claim, err: err}
}

// Verify implements proof.Verifier.
func (m *MockVerifier) Verify(_ context.Context, _ proof.Proof, expect proof.Expectation) (*proof.VerifiedClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, expect)
	if m.err != nil {
		return nil, m.err
	}
	err := expect.Check(m.claim)
	if err != nil {
		return nil, err
	}
	return m.claim.Clone(), nil
}

// Calls returns the expectations seen so far.
func (m *MockVerifier) Calls() []proof.Expectation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]proof.Expectation, len(m.calls))
	copy(out, m.calls)
	return out
}
