package app

import (
	"context"
	"sync"

	"github.com/mselser95/reservation-escrow/internal/escrow"
	"github.com/mselser95/reservation-escrow/internal/keeper"
	"github.com/mselser95/reservation-escrow/internal/relayer"
	"github.com/mselser95/reservation-escrow/internal/storage"
	"github.com/mselser95/reservation-escrow/pkg/cache"
	"github.com/mselser95/reservation-escrow/pkg/config"
	"github.com/mselser95/reservation-escrow/pkg/health"
	"github.com/mselser95/reservation-escrow/pkg/httpserver"
	"github.com/mselser95/reservation-escrow/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *health.HealthChecker
	httpServer    *httpserver.Server
	engine        *escrow.Engine
	proofCache    *cache.RistrettoCache
	journal       *storage.Journal // nil when STORAGE_MODE=none
	hub           *websocket.Hub
	relayer       *relayer.Relayer     // nil when the relayer is disabled
	limiter       *relayer.RateLimiter // nil when the relayer is disabled
	keeper        *keeper.Keeper       // nil when the keeper is disabled
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	Clock escrow.Clock // overrides the wall clock, for tests and simulations
}

// Engine returns the escrow engine.
func (a *App) Engine() *escrow.Engine {
	return a.engine
}
