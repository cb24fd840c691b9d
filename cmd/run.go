package cmd

import (
	"fmt"

	"github.com/mselser95/reservation-escrow/internal/app"
	"github.com/mselser95/reservation-escrow/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the escrow service",
	Long: `Starts the escrow service, which will:
1. Serve the marketplace API, metrics and health checks
2. Stream protocol events over WebSocket at /ws/events
3. Journal events to the console or PostgreSQL (STORAGE_MODE)
4. Run the email relayer under /relayer when RELAYER_ENABLED is set
5. Run the keeper sweep when KEEPER_ENABLED is set`,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger(cfg.LoggerOptions("service"))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
