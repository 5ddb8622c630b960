package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imeiledger/internal/logger"
	"imeiledger/internal/ubl"
	"imeiledger/pkg/models"
)

var parseCmd = &cobra.Command{
	Use:   "parse [invoice.xml...]",
	Short: "Parse UBL invoice XML files and print the extracted fields",
	Long: `Parse one or more UBL-TR invoice XML files and print the fields the
reconciliation uses: parties, totals, VAT rates and line items.`,
	Example: `  imeiledger parse EFA2024000000123.xml
  imeiledger parse --json downloads/*.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().Bool("json", false, "Output as JSON")
}

func runParse(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("parse-cmd")
	asJSON, _ := cmd.Flags().GetBool("json")

	var parsed []*models.Invoice
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		inv := ubl.Parse(data)
		if inv.Empty() {
			log.Warn().Str("file", path).Msg("Not a UBL invoice, skipped")
			continue
		}
		parsed = append(parsed, inv)
		if !asJSON {
			printInvoice(path, inv)
		}
	}

	if asJSON {
		out, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}

func printInvoice(path string, inv *models.Invoice) {
	fmt.Printf("File:          %s\n", path)
	fmt.Printf("Invoice No:    %s\n", inv.InvoiceNumber)
	fmt.Printf("Issue Date:    %s\n", inv.IssueDate)
	fmt.Printf("Supplier:      %s (%s %s)\n", inv.SupplierName, inv.SupplierIDType, inv.SupplierTaxID)
	fmt.Printf("Buyer:         %s (%s %s)\n", inv.BuyerName, inv.BuyerIDType, inv.BuyerTaxID)
	fmt.Printf("Payable:       %s\n", models.FormatAmount(inv.PayableAmount))
	fmt.Printf("Tax:           %s\n", models.FormatAmount(inv.TaxTotal))
	if inv.VATRate != nil {
		fmt.Printf("VAT Rate:      %%%d\n", *inv.VATRate)
	}
	if inv.Brand != "" || inv.Model != "" {
		fmt.Printf("Device:        %s %s\n", inv.Brand, inv.Model)
	}
	fmt.Printf("IMEIs:         %d\n", len(inv.Identifiers))
	for _, id := range inv.Identifiers {
		fmt.Printf("  %s\n", id)
	}
	for i, line := range inv.Lines {
		rate := "-"
		if line.VATRate != nil {
			rate = fmt.Sprintf("%%%d", *line.VATRate)
		}
		fmt.Printf("  %2d. %s [%s x %s = %s, %s]\n", i+1, line.Blob,
			models.FormatAmount(line.Quantity), models.FormatAmount(line.UnitPrice),
			models.FormatAmount(line.LineTotal), rate)
	}
	fmt.Println()
}
