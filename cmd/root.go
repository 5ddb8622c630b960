package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imeiledger/internal/config"
	"imeiledger/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "imeiledger",
	Short: "IMEI ledger - reconcile device identifiers across e-invoices and expense vouchers",
	Long: `imeiledger reconciles mobile-device purchases and sales by IMEI.

It lists incoming, outgoing and e-archive invoices from the NES e-invoice API,
extracts IMEI numbers and VAT rates from the UBL XML documents, merges
expense-voucher spreadsheets and produces a 24-column xlsx report with a
renewed / second-hand classification per device.

Configuration is read from the environment (and an optional .env file).
Run without a subcommand to see the report layout.`,
	Version:      version,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imeiledger %s - report columns:\n\n", version)
		printHeaders(out)
		fmt.Fprintln(out, "\nRun \"imeiledger scan --help\" to build a report.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
