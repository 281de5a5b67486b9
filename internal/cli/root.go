// Package cli implements the ledger command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd *cobra.Command

func init() {
	rootCmd = &cobra.Command{
		Use:   "ledger",
		Short: "Home budget accounting ledger",
		Long: `ledger runs the event-sourced accounting pipeline: it consumes payment
operation events, appends them to per-account monthly streams, relays the
outbox and replays streams into account history and balances.

Configuration is read from the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(paymentCmd)
	rootCmd.AddCommand(deadLettersCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
