package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mselser95/reservation-escrow/internal/circuitbreaker"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/internal/keeper"
	"github.com/mselser95/reservation-escrow/internal/proof"
	"github.com/mselser95/reservation-escrow/internal/relayer"
	"github.com/mselser95/reservation-escrow/internal/storage"
	"github.com/mselser95/reservation-escrow/pkg/cache"
	"github.com/mselser95/reservation-escrow/pkg/config"
	"github.com/mselser95/reservation-escrow/pkg/health"
	"github.com/mselser95/reservation-escrow/pkg/httpserver"
	"github.com/mselser95/reservation-escrow/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = escrow.ClockFunc(time.Now)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: setupHealthChecker(),
		ctx:           ctx,
		cancel:        cancel,
	}

	err := a.setup(clock)
	if err != nil {
		a.release()
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(clock escrow.Clock) error {
	signer, err := setupSigner(a.cfg)
	if err != nil {
		return fmt.Errorf("setup signer: %w", err)
	}

	verifier, proofCache, err := setupVerifier(a.cfg, a.logger, signer, clock)
	if err != nil {
		return fmt.Errorf("setup verifier: %w", err)
	}
	a.proofCache = proofCache

	a.engine, err = setupEngine(a.cfg, a.logger, verifier, clock)
	if err != nil {
		return fmt.Errorf("setup engine: %w", err)
	}

	a.journal, err = setupJournal(a.ctx, a.cfg, a.logger, a.healthChecker)
	if err != nil {
		return fmt.Errorf("setup journal: %w", err)
	}
	if a.journal != nil {
		a.engine.Events().Subscribe(a.journal)
	}

	a.hub = setupHub(a.cfg, a.logger, a.engine)
	a.engine.Events().Subscribe(escrow.EmitterFunc(func(evt escrow.Event) {
		a.hub.Broadcast(evt)
	}))

	var relayerHandler http.Handler
	if a.cfg.RelayerEnabled {
		a.relayer, a.limiter, err = setupRelayer(a.cfg, a.logger, signer, clock)
		if err != nil {
			return fmt.Errorf("setup relayer: %w", err)
		}
		relayerHandler = relayer.NewHandler(a.relayer, a.limiter, a.cfg.IsDevelopment(), a.logger).Router()
	}

	if a.cfg.KeeperEnabled {
		a.keeper, err = setupKeeper(a.cfg, a.logger, a.engine)
		if err != nil {
			return fmt.Errorf("setup keeper: %w", err)
		}
	}

	a.httpServer = setupHTTPServer(a.cfg, a.logger, a.healthChecker, a.engine, a.hub, relayerHandler)
	return nil
}

// release frees resources acquired by a partially completed setup.
func (a *App) release() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.hub != nil {
		_ = a.hub.Close()
	}
	if a.proofCache != nil {
		a.proofCache.Close()
	}
}

func setupHealthChecker() *health.HealthChecker {
	return health.New()
}

// setupSigner parses the relayer's attester key. It returns nil when no key
// is configured.
func setupSigner(cfg *config.Config) (*proof.Signer, error) {
	if cfg.RelayerAttesterKey == "" {
		return nil, nil
	}
	return proof.NewSigner(cfg.RelayerAttesterKey)
}

// setupVerifier trusts the configured attesters plus the local relayer's
// signer, and memoizes signature recovery in a ristretto cache.
func setupVerifier(
	cfg *config.Config,
	logger *zap.Logger,
	signer *proof.Signer,
	clock escrow.Clock,
) (proof.Verifier, *cache.RistrettoCache, error) {
	attesters := cfg.Attesters()
	if signer != nil {
		attesters = append(attesters, signer.Address())
	}

	inner, err := proof.NewAttestationVerifier(&proof.AttestationConfig{
		Attesters:    attesters,
		MaxClockSkew: cfg.ProofMaxClockSkew,
		Now:          clock.Now,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create attestation verifier: %w", err)
	}

	proofCache, err := cache.NewRistrettoCache(cache.DefaultRistrettoConfig("proofs", cfg.ProofCacheSize, logger))
	if err != nil {
		return nil, nil, fmt.Errorf("create proof cache: %w", err)
	}

	verifier, err := proof.NewCachedVerifier(inner, proofCache, cfg.ProofCacheTTL, logger)
	if err != nil {
		proofCache.Close()
		return nil, nil, fmt.Errorf("create cached verifier: %w", err)
	}

	logger.Info("proof-verifier-configured",
		zap.Int("attesters", len(attesters)),
		zap.Duration("cache-ttl", cfg.ProofCacheTTL))

	return verifier, proofCache, nil
}

func setupEngine(cfg *config.Config, logger *zap.Logger, verifier proof.Verifier, clock escrow.Clock) (*escrow.Engine, error) {
	calc, err := fees.New(fees.Params{
		ListingFeeBps:       cfg.ListingFeeBps,
		SuccessFeeBps:       cfg.SuccessFeeBps,
		DepositMultiplier:   cfg.DepositMultiplier,
		SellerStakeBps:      cfg.SellerStakeBps,
		ForfeitureSellerBps: cfg.ForfeitureSellerBps,
	})
	if err != nil {
		return nil, fmt.Errorf("create fee calculator: %w", err)
	}

	return escrow.New(&escrow.Config{
		Verifier: verifier,
		Fees:     calc,
		Clock:    clock,
		Timing: escrow.Timing{
			MinLeadTime:          cfg.MinLeadTime,
			ClaimWindow:          cfg.ClaimWindow,
			EarlyCancelTolerance: cfg.EarlyCancelTolerance,
		},
		Treasury:        cfg.Treasury(),
		RelistOnTimeout: cfg.RelistOnTimeout,
		Logger:          logger,
	})
}

// setupJournal picks the event journal backend. It returns nil for
// STORAGE_MODE=none.
func setupJournal(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *health.HealthChecker,
) (*storage.Journal, error) {
	var backend storage.Storage

	switch cfg.StorageMode {
	case "none":
		logger.Info("event-journal-disabled")
		return nil, nil
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pg, err := storage.NewPostgresStorage(connectCtx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		healthChecker.AddCheck("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pg.Ping(pingCtx)
		})
		backend = pg
	default:
		backend = storage.NewConsoleStorage(logger)
	}

	return storage.NewJournal(&storage.JournalConfig{
		Storage: backend,
		Logger:  logger,
	}), nil
}

// setupHub serves the event stream; reconnecting clients resume from the
// engine's log.
func setupHub(cfg *config.Config, logger *zap.Logger, engine *escrow.Engine) *websocket.Hub {
	return websocket.NewHub(websocket.HubConfig{
		WriteTimeout: cfg.WSWriteTimeout,
		PingInterval: cfg.WSPingInterval,
		ClientBuffer: cfg.WSClientBuffer,
		Backlog: func(since uint64) []any {
			events := engine.Events().Since(since, 0)
			out := make([]any, len(events))
			for i, evt := range events {
				out[i] = evt
			}
			return out
		},
		Logger: logger,
	})
}

func setupRelayer(
	cfg *config.Config,
	logger *zap.Logger,
	signer *proof.Signer,
	clock escrow.Clock,
) (*relayer.Relayer, *relayer.RateLimiter, error) {
	r, err := relayer.New(&relayer.Config{
		Signer:          signer,
		Logger:          logger,
		QueueSize:       cfg.RelayerQueueSize,
		ProcessingDelay: cfg.RelayerDelay,
		Now:             clock.Now,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create relayer: %w", err)
	}

	logger.Info("relayer-enabled",
		zap.String("attester", r.Attester().Hex()),
		zap.Float64("rate-limit", cfg.RelayerRateLimit),
		zap.Int("rate-burst", cfg.RelayerRateBurst))

	return r, relayer.NewRateLimiter(cfg.RelayerRateLimit, cfg.RelayerRateBurst, logger), nil
}

func setupKeeper(cfg *config.Config, logger *zap.Logger, engine *escrow.Engine) (*keeper.Keeper, error) {
	target := keeper.NewEngineTarget(engine, cfg.Keeper())

	breaker, err := NewKeeperBreaker(cfg, target, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("keeper-enabled",
		zap.String("caller", cfg.Keeper().Hex()),
		zap.Duration("interval", cfg.KeeperInterval))

	return keeper.New(&keeper.Config{
		Target:   target,
		Interval: cfg.KeeperInterval,
		Breaker:  breaker,
		Logger:   logger,
	})
}

// NewKeeperBreaker builds the circuit breaker that pauses keeper sweeps when
// the target keeps failing.
func NewKeeperBreaker(cfg *config.Config, pinger circuitbreaker.Pinger, logger *zap.Logger) (*circuitbreaker.HealthCircuitBreaker, error) {
	minSamples := 5
	if cfg.KeeperBreakerWindow < minSamples {
		minSamples = cfg.KeeperBreakerWindow
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.KeeperBreakerInterval,
		WindowSize:      cfg.KeeperBreakerWindow,
		MaxFailureRatio: cfg.KeeperBreakerMaxRatio,
		MinSamples:      minSamples,
		RecoveryChecks:  2,
		Pinger:          pinger,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create keeper circuit breaker: %w", err)
	}
	return breaker, nil
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *health.HealthChecker,
	engine *escrow.Engine,
	hub *websocket.Hub,
	relayerHandler http.Handler,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		HealthChecker:  healthChecker,
		Engine:         engine,
		AmountDecimals: cfg.AmountDecimals,
		Development:    cfg.IsDevelopment(),
		EventStream:    hub,
		Relayer:        relayerHandler,
	})
}
