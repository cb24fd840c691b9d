package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop taking requests first so no new events are produced
	err := a.shutdownHTTPServer(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.shutdownWorkers()

	// Close event stream subscribers
	err = a.hub.Close()
	if err != nil {
		a.logger.Error("event-hub-close-error", zap.Error(err))
	}

	// Flush and close the journal
	err = a.shutdownJournal()
	if err != nil {
		a.logger.Error("journal-close-error", zap.Error(err))
	}

	a.proofCache.Close()

	// Wait for all goroutines
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete",
		zap.Int("events", a.engine.Events().Len()))

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownWorkers() {
	if a.keeper != nil {
		a.keeper.Wait()
	}
	if a.relayer != nil {
		a.relayer.Wait()
	}
}

func (a *App) shutdownJournal() error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Close()
}
