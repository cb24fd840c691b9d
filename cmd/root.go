package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "reservation-escrow",
	Short: "Escrow marketplace for restaurant reservations",
	Long: `Escrow marketplace for restaurant reservations.

Sellers list a reservation they hold, buyers purchase it with a refundable
deposit, and the hand-off is settled from signed email proofs: the seller
proves the cancellation, the buyer proves the new booking. A keeper
finalizes orders whose claim window passed and listings past expiry.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadDotEnv(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before the configuration")
}

// loadDotEnv loads the env file without overriding variables already set.
func loadDotEnv(cmd *cobra.Command) {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return
	}
	err := godotenv.Load(path)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not load %s: %v\n", path, err)
	}
}
