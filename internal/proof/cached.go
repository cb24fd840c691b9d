package proof

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/mselser95/reservation-escrow/pkg/cache"
)

// CachedVerifier memoizes authenticated claims by proof digest so repeated
// submissions of the same proof skip signature recovery. Expectations are
// always re-checked.
type CachedVerifier struct {
	inner  Authenticator
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedVerifier wraps inner with c.
func NewCachedVerifier(inner Authenticator, c cache.Cache, ttl time.Duration, logger *zap.Logger) (*CachedVerifier, error) {
	if inner == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if c == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &CachedVerifier{inner: inner, cache: c, ttl: ttl, logger: logger}, nil
}

// Authenticate returns the cached claim for p, authenticating on a miss.
func (v *CachedVerifier) Authenticate(ctx context.Context, p Proof) (*VerifiedClaim, error) {
	key := crypto.Keccak256Hash(p).Hex()

	if cached, ok := v.cache.Get(key); ok {
		if claim, ok := cached.(*VerifiedClaim); ok {
			return claim.Clone(), nil
		}
	}

	claim, err := v.inner.Authenticate(ctx, p)
	if err != nil {
		return nil, err
	}

	v.cache.Set(key, claim.Clone(), v.ttl)
	return claim, nil
}

// Verify authenticates p through the cache and checks expect.
func (v *CachedVerifier) Verify(ctx context.Context, p Proof, expect Expectation) (*VerifiedClaim, error) {
	claim, err := v.Authenticate(ctx, p)
	if err != nil {
		return nil, err
	}
	err = expect.Check(claim)
	if err != nil {
		VerificationsTotal.WithLabelValues(string(expect.EventType), "mismatch").Inc()
		return nil, err
	}
	VerificationsTotal.WithLabelValues(string(expect.EventType), "ok").Inc()
	return claim, nil
}
