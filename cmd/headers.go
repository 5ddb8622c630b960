package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"imeiledger/internal/reconciliation"
)

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Print the report columns",
	Long:  `Print the 24 report columns in export order. Template workbooks use the same layout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		printHeaders(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(headersCmd)
}

func printHeaders(w io.Writer) {
	for i, h := range reconciliation.Headers {
		fmt.Fprintf(w, "%2d. %s\n", i+1, h)
	}
}
