package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"imeiledger/internal/logger"
	"imeiledger/internal/reconciliation"
	"imeiledger/internal/voucher"
)

var importCmd = &cobra.Command{
	Use:   "import [workbook...]",
	Short: "Merge expense-voucher workbooks and exported reports into one report",
	Long: `Merge local xlsx workbooks into a single IMEI report without calling the
NES API. Workbooks in the report layout are merged row by row; any other
workbook is scanned for identifiers and treated as expense-voucher items.

Rows of GOOGLE_SHEET_URL can be added with --sheet-range.`,
	Example: `  # Merge two vouchers and an old report
  imeiledger import gp_2024.xlsx gp_2025.xlsx old_report.xlsx -o merged.xlsx

  # Merge a worksheet of GOOGLE_SHEET_URL and publish the result
  imeiledger import --sheet-range "GP!A:Z" --publish`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringSlice("sheet-range", nil, "Range of GOOGLE_SHEET_URL to merge, e.g. GP!A:Z")
	importCmd.Flags().StringP("output", "o", "", "Report path (default: REPORT_OUTPUT)")
	importCmd.Flags().Bool("publish", false, "Publish the report to GOOGLE_SHEET_URL")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("import-cmd")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sheetRanges, _ := cmd.Flags().GetStringSlice("sheet-range")
	output, _ := cmd.Flags().GetString("output")
	publish, _ := cmd.Flags().GetBool("publish")

	if len(args) == 0 && len(sheetRanges) == 0 {
		return fmt.Errorf("no workbooks given. Pass files or --sheet-range")
	}
	if output == "" {
		output = cfg.ReportOutput
	}

	ctx := context.Background()
	ledger := reconciliation.New()
	reader := voucher.NewReader()

	for _, path := range args {
		res, err := readWorkbookFile(reader, path)
		if err != nil {
			return err
		}
		merged := ledger.Import(res.LedgerRows(path), true)
		log.Info().
			Str("file", path).
			Bool("template", res.Template).
			Int("entries", res.Len()).
			Int("merged", merged).
			Msg("Workbook merged")
		fmt.Printf("%s: %d entries, %d merged\n", path, res.Len(), merged)
	}

	if len(sheetRanges) > 0 {
		svc, err := newSheetsService(ctx, cfg)
		if err != nil {
			return err
		}
		for _, rng := range sheetRanges {
			res, err := reader.ReadSheet(ctx, svc, rng)
			if err != nil {
				return fmt.Errorf("failed to read range %s: %w", rng, err)
			}
			merged := ledger.Import(res.LedgerRows(rng), true)
			log.Info().Str("range", rng).Int("entries", res.Len()).Int("merged", merged).Msg("Sheet range merged")
			fmt.Printf("%s: %d entries, %d merged\n", rng, res.Len(), merged)
		}
	}

	fmt.Printf("Records: %d\n", ledger.Len())
	return writeOutputs(ctx, cfg, ledger, output, true, publish)
}
