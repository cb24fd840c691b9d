package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pinger checks whether the guarded target is reachable.
// Both keeper targets and test mocks implement this interface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCircuitBreaker gates keeper sweeps. It trips when too many recent
// actions fail or the target stops answering pings, and closes again only
// after enough consecutive successful checks (hysteresis).
type HealthCircuitBreaker struct {
	enabled atomic.Bool // Atomic for lock-free reads

	// Configuration
	checkInterval   time.Duration
	pinger          Pinger
	logger          *zap.Logger
	windowSize      int
	maxFailureRatio float64
	minSamples      int
	recoveryChecks  int

	// Protected by mutex
	mu            sync.RWMutex
	recent        []bool // rolling window, true = failure
	lastCheck     time.Time
	lastCheckErr  error
	consecutiveOK int
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval   time.Duration
	WindowSize      int     // number of recent actions considered
	MaxFailureRatio float64 // trip when failures/window exceeds this
	MinSamples      int     // actions required before the ratio applies
	RecoveryChecks  int     // consecutive good checks needed to close
	Pinger          Pinger
	Logger          *zap.Logger
}

// Status holds current circuit breaker status for debugging.
type Status struct {
	Enabled        bool
	LastCheck      time.Time
	LastCheckError string
	Samples        int
	Failures       int
	FailureRatio   float64
	ConsecutiveOK  int
}

// New creates a new circuit breaker with the given configuration.
func New(cfg *Config) (breaker *HealthCircuitBreaker, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Pinger == nil {
		return nil, fmt.Errorf("pinger cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if cfg.MaxFailureRatio <= 0 || cfg.MaxFailureRatio > 1 {
		return nil, fmt.Errorf("max failure ratio must be in (0, 1]")
	}
	if cfg.MinSamples <= 0 || cfg.MinSamples > cfg.WindowSize {
		return nil, fmt.Errorf("min samples must be in [1, window size]")
	}
	if cfg.RecoveryChecks < 1 {
		return nil, fmt.Errorf("recovery checks must be >= 1")
	}

	breaker = &HealthCircuitBreaker{
		checkInterval:   cfg.CheckInterval,
		pinger:          cfg.Pinger,
		logger:          cfg.Logger,
		windowSize:      cfg.WindowSize,
		maxFailureRatio: cfg.MaxFailureRatio,
		minSamples:      cfg.MinSamples,
		recoveryChecks:  cfg.RecoveryChecks,
		recent:          make([]bool, 0, cfg.WindowSize),
	}

	// Start enabled by default
	breaker.enabled.Store(true)

	CircuitBreakerEnabled.Set(1)
	CircuitBreakerFailureRatio.Set(0)

	return breaker, nil
}

// IsEnabled returns true if sweeps may run.
// This is lock-free and safe to call from hot paths.
func (b *HealthCircuitBreaker) IsEnabled() (enabled bool) {
	return b.enabled.Load()
}

// RecordResult adds one action outcome to the rolling window and trips the
// breaker when the failure ratio is exceeded.
func (b *HealthCircuitBreaker) RecordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, err != nil)
	if len(b.recent) > b.windowSize {
		b.recent = b.recent[1:]
	}

	failures, ratio := b.ratioLocked()
	CircuitBreakerFailureRatio.Set(ratio)

	if len(b.recent) >= b.minSamples && ratio > b.maxFailureRatio && b.enabled.Load() {
		b.tripLocked("failure-ratio",
			zap.Int("failures", failures),
			zap.Int("samples", len(b.recent)),
			zap.Float64("ratio", ratio))
	}
}

func (b *HealthCircuitBreaker) ratioLocked() (failures int, ratio float64) {
	for _, failed := range b.recent {
		if failed {
			failures++
		}
	}
	if len(b.recent) == 0 {
		return 0, 0
	}
	return failures, float64(failures) / float64(len(b.recent))
}

// tripLocked opens the breaker. The caller holds mu.
func (b *HealthCircuitBreaker) tripLocked(reason string, fields ...zap.Field) {
	b.enabled.Store(false)
	b.consecutiveOK = 0
	CircuitBreakerEnabled.Set(0)
	CircuitBreakerStateChanges.WithLabelValues("disabled").Inc()

	b.logger.Warn("circuit-breaker-disabled", append(fields, zap.String("reason", reason))...)
}

// CheckHealth pings the target and updates the enabled state.
func (b *HealthCircuitBreaker) CheckHealth(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		CircuitBreakerCheckDuration.Observe(time.Since(start).Seconds())
	}()

	err = b.pinger.Ping(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastCheck = time.Now()
	b.lastCheckErr = err
	currentlyEnabled := b.enabled.Load()

	if err != nil {
		b.consecutiveOK = 0
		if currentlyEnabled {
			b.tripLocked("check-failed", zap.Error(err))
		} else {
			b.logger.Debug("check-failed-while-disabled", zap.Error(err))
		}
		return fmt.Errorf("ping: %w", err)
	}

	b.consecutiveOK++
	if !currentlyEnabled && b.consecutiveOK >= b.recoveryChecks {
		b.enabled.Store(true)
		b.recent = b.recent[:0]
		CircuitBreakerEnabled.Set(1)
		CircuitBreakerFailureRatio.Set(0)
		CircuitBreakerStateChanges.WithLabelValues("enabled").Inc()

		b.logger.Info("circuit-breaker-enabled",
			zap.Int("consecutive-ok", b.consecutiveOK))
		return nil
	}

	b.logger.Debug("target-checked",
		zap.Bool("enabled", currentlyEnabled),
		zap.Int("consecutive-ok", b.consecutiveOK))
	return nil
}

// Start begins the background monitoring loop that periodically pings the
// target. This runs until the context is cancelled.
func (b *HealthCircuitBreaker) Start(ctx context.Context) {
	b.logger.Info("circuit-breaker-started",
		zap.Duration("check-interval", b.checkInterval),
		zap.Int("window-size", b.windowSize),
		zap.Float64("max-failure-ratio", b.maxFailureRatio))

	if err := b.CheckHealth(ctx); err != nil {
		b.logger.Error("initial-check-failed", zap.Error(err))
	}

	go b.monitorLoop(ctx)
}

func (b *HealthCircuitBreaker) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("circuit-breaker-stopped")
			return
		case <-ticker.C:
			if err := b.CheckHealth(ctx); err != nil {
				// Log error but continue monitoring
				b.logger.Warn("check-error", zap.Error(err))
			}
		}
	}
}

// GetStatus returns current circuit breaker status for debugging and HTTP endpoints.
func (b *HealthCircuitBreaker) GetStatus() (status Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	failures, ratio := b.ratioLocked()
	status = Status{
		Enabled:       b.enabled.Load(),
		LastCheck:     b.lastCheck,
		Samples:       len(b.recent),
		Failures:      failures,
		FailureRatio:  ratio,
		ConsecutiveOK: b.consecutiveOK,
	}
	if b.lastCheckErr != nil {
		status.LastCheckError = b.lastCheckErr.Error()
	}

	return status
}
