package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("environment", a.cfg.Environment),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Bool("relayer-enabled", a.cfg.RelayerEnabled),
		zap.Bool("keeper-enabled", a.cfg.KeeperEnabled),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("treasury", a.cfg.Treasury().Hex()))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startComponents() {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	if a.journal != nil {
		a.journal.Start(a.ctx)
	}

	if a.relayer != nil {
		a.relayer.Start(a.ctx)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.limiter.Run(a.ctx, time.Minute)
		}()
	}

	if a.keeper != nil {
		a.keeper.Start(a.ctx)
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
