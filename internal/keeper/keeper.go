package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/reservation-escrow/internal/circuitbreaker"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"go.uber.org/zap"
)

// Keeper periodically finalizes orders past their claim deadline and
// listings past their expiry. Both entry points are permissionless.
type Keeper struct {
	target   Target
	interval time.Duration
	breaker  *circuitbreaker.HealthCircuitBreaker
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// Config holds keeper configuration.
type Config struct {
	Target   Target
	Interval time.Duration
	Breaker  *circuitbreaker.HealthCircuitBreaker // optional
	Logger   *zap.Logger
}

// Result summarizes one sweep.
type Result struct {
	Settled int // orders finalized
	Expired int // listings closed
	Skipped int // already finalized by someone else
	Failed  int
}

// New creates a keeper.
func New(cfg *Config) (*Keeper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Target == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	return &Keeper{
		target:   cfg.Target,
		interval: cfg.Interval,
		breaker:  cfg.Breaker,
		logger:   cfg.Logger,
	}, nil
}

// Start runs a sweep immediately and then every interval until ctx is
// cancelled.
func (k *Keeper) Start(ctx context.Context) {
	k.logger.Info("keeper-starting", zap.Duration("interval", k.interval))

	if k.breaker != nil {
		k.breaker.Start(ctx)
	}

	k.wg.Add(1)
	go k.sweepLoop(ctx)
}

// Wait blocks until the sweep loop has exited.
func (k *Keeper) Wait() {
	k.wg.Wait()
}

func (k *Keeper) sweepLoop(ctx context.Context) {
	defer k.wg.Done()

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		k.runOnce(ctx)

		select {
		case <-ctx.Done():
			k.logger.Info("keeper-stopping")
			return
		case <-ticker.C:
		}
	}
}

func (k *Keeper) runOnce(ctx context.Context) {
	if k.breaker != nil && !k.breaker.IsEnabled() {
		SweepsTotal.WithLabelValues("skipped").Inc()
		k.logger.Debug("keeper-sweep-skipped-breaker-open")
		return
	}

	result, err := k.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			k.logger.Error("keeper-sweep-failed", zap.Error(err))
		}
		return
	}
	if result.Settled+result.Expired+result.Failed > 0 {
		k.logger.Info("keeper-sweep-complete",
			zap.Int("settled", result.Settled),
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
}

// Sweep finalizes everything currently due. Individual action failures are
// counted, not returned; only failing to read the due set is an error.
func (k *Keeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() {
		SweepDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	var result Result

	due, err := k.target.Due(ctx)
	k.record(err)
	if err != nil {
		SweepsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("fetch due work: %w", err)
	}

	for _, id := range due.Orders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		k.apply(ctx, "settle_expired", id, k.target.SettleExpired, &result.Settled, &result)
	}
	for _, id := range due.Listings {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		k.apply(ctx, "expire_listing", id, k.target.ExpireListing, &result.Expired, &result)
	}

	SweepsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (k *Keeper) apply(ctx context.Context, action string, id common.Hash,
	fn func(context.Context, common.Hash) error, done *int, result *Result) {
	err := fn(ctx, id)
	switch {
	case err == nil:
		*done++
		ActionsTotal.WithLabelValues(action, "ok").Inc()
		k.logger.Debug("keeper-action-applied",
			zap.String("action", action),
			zap.String("entity-id", id.Hex()))
		k.record(nil)
	case errors.Is(err, escrow.ErrState) || errors.Is(err, escrow.ErrNotFound):
		// Lost a race with a claim, a cancel or another keeper.
		result.Skipped++
		ActionsTotal.WithLabelValues(action, "skipped").Inc()
		k.logger.Debug("keeper-action-skipped",
			zap.String("action", action),
			zap.String("entity-id", id.Hex()),
			zap.Error(err))
		k.record(nil)
	default:
		result.Failed++
		ActionsTotal.WithLabelValues(action, "failed").Inc()
		k.logger.Warn("keeper-action-failed",
			zap.String("action", action),
			zap.String("entity-id", id.Hex()),
			zap.Error(err))
		k.record(err)
	}
}

func (k *Keeper) record(err error) {
	if k.breaker != nil {
		k.breaker.RecordResult(err)
	}
}
