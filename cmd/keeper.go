package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mselser95/reservation-escrow/internal/app"
	"github.com/mselser95/reservation-escrow/internal/keeper"
	"github.com/mselser95/reservation-escrow/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Run the keeper against a remote escrow service",
	Long: `Polls a running escrow service for orders past their claim deadline and
listings past their expiry, and finalizes them. Sweeps pause while the
circuit breaker is open (too many failed actions or an unreachable service).

Example:
  reservation-escrow keeper --url http://localhost:8080
  reservation-escrow keeper --url http://localhost:8080 --once`,
	RunE: runKeeper,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(keeperCmd)
	keeperCmd.Flags().String("url", "http://localhost:8080", "Escrow service base URL")
	keeperCmd.Flags().Bool("once", false, "Run a single sweep and exit")
}

func runKeeper(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LoggerOptions("keeper"))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	baseURL, _ := cmd.Flags().GetString("url")
	once, _ := cmd.Flags().GetBool("once")

	client := keeper.NewClient(baseURL, cfg.Keeper(), logger)

	breaker, err := app.NewKeeperBreaker(cfg, client, logger)
	if err != nil {
		return err
	}

	k, err := keeper.New(&keeper.Config{
		Target:   client,
		Interval: cfg.KeeperInterval,
		Breaker:  breaker,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create keeper: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		res, err := k.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "settled=%d expired=%d skipped=%d failed=%d\n",
			res.Settled, res.Expired, res.Skipped, res.Failed)
		return nil
	}

	logger.Info("remote-keeper-starting",
		zap.String("url", baseURL),
		zap.Duration("interval", cfg.KeeperInterval))

	k.Start(ctx)
	<-ctx.Done()
	k.Wait()

	logger.Info("remote-keeper-stopped")
	return nil
}
