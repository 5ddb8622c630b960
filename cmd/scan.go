package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imeiledger/internal/config"
	"imeiledger/internal/imei"
	"imeiledger/internal/logger"
	"imeiledger/internal/nes"
	"imeiledger/internal/reconciliation"
	"imeiledger/internal/report"
	"imeiledger/internal/scan"
	"imeiledger/internal/sheets"
	"imeiledger/internal/voucher"
	"imeiledger/pkg/services"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan NES invoices and expense vouchers into an IMEI report",
	Long: `Scan purchase (incoming) invoices, optionally sale (outgoing and e-archive)
invoices, and expense-voucher spreadsheets, then write the IMEI report.

Identifiers are restricted to the target list (--targets) unless
--include-outside is set. Targets that no purchase invoice mentions are
reported as NOT_FOUND_IN_PURCHASES. When a document-number list (--documents)
is given together with --sales, the listed sale documents are scanned first
and their identifiers become targets.

Press Ctrl+C to stop; the partial report is still written.

Required environment variables:
  NES_API_TOKEN - NES e-invoice API token

Optional environment variables:
  NES_BASE_URL, NES_PAGE_SIZE, NES_TIMEOUT_CONNECT, NES_TIMEOUT_READ,
  NES_RETRIES, NES_BACKOFF, REPORT_OUTPUT, DOWNLOAD_DIR, VOUCHER_URLS,
  SUPPLIER_WHITELIST, GOOGLE_SHEET_URL, GOOGLE_SHEET_WORKSHEET,
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS`,
	Example: `  # Scan purchases for the identifiers in a list
  imeiledger scan --targets imeis.txt

  # Scan purchases and sales in a date range, include every identifier
  imeiledger scan --start 2024-01-01 --end 2024-06-30 --sales --include-outside

  # Start from a list of e-archive numbers, merge a voucher workbook, publish
  imeiledger scan --documents ear.txt --sales \
    --voucher-url https://docs.google.com/spreadsheets/d/abc/edit --publish

  # Download purchase and sale documents of every row after the scan
  imeiledger scan --targets imeis.xlsx --sales --download both`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("start", "", "Start date (YYYY-MM-DD, default: 2015-01-01)")
	scanCmd.Flags().String("end", "", "End date (YYYY-MM-DD, default: today)")
	scanCmd.Flags().String("targets", "", "Target IMEI list (xlsx, csv or txt)")
	scanCmd.Flags().String("documents", "", "File with EAR/EFR document numbers to restrict sales to")
	scanCmd.Flags().StringSlice("import", nil, "Previously exported reports to start from")
	scanCmd.Flags().Bool("sales", false, "Also scan outgoing and e-archive sale invoices")
	scanCmd.Flags().Bool("include-outside", false, "Merge identifiers that are not in the target list")
	scanCmd.Flags().Bool("require-targets", false, "Refuse to scan without targets or document numbers")
	scanCmd.Flags().String("supplier-name", "", "Only purchases whose supplier name contains this text")
	scanCmd.Flags().String("supplier-tax-id", "", "Only purchases from this VKN/TCKN")
	scanCmd.Flags().String("buyer-name", "", "Only sales whose buyer name contains this text")
	scanCmd.Flags().String("buyer-tax-id", "", "Only sales to this VKN/TCKN")
	scanCmd.Flags().StringSlice("voucher-url", nil, "Expense-voucher workbook URL (default: VOUCHER_URLS)")
	scanCmd.Flags().StringSlice("sheet-range", nil, "Range of GOOGLE_SHEET_URL to read as an expense-voucher list, e.g. GP!A:Z")
	scanCmd.Flags().StringP("output", "o", "", "Report path (default: REPORT_OUTPUT)")
	scanCmd.Flags().Bool("no-xlsx", false, "Do not write the xlsx report")
	scanCmd.Flags().Bool("publish", false, "Publish the report to GOOGLE_SHEET_URL")
	scanCmd.Flags().String("download", "", "Download documents after the scan: xml, pdf or both")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scan-cmd")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Get flags
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	targetsPath, _ := cmd.Flags().GetString("targets")
	documentsPath, _ := cmd.Flags().GetString("documents")
	imports, _ := cmd.Flags().GetStringSlice("import")
	scanSales, _ := cmd.Flags().GetBool("sales")
	includeOutside, _ := cmd.Flags().GetBool("include-outside")
	requireTargets, _ := cmd.Flags().GetBool("require-targets")
	supplierName, _ := cmd.Flags().GetString("supplier-name")
	supplierTaxID, _ := cmd.Flags().GetString("supplier-tax-id")
	buyerName, _ := cmd.Flags().GetString("buyer-name")
	buyerTaxID, _ := cmd.Flags().GetString("buyer-tax-id")
	voucherURLs, _ := cmd.Flags().GetStringSlice("voucher-url")
	sheetRanges, _ := cmd.Flags().GetStringSlice("sheet-range")
	output, _ := cmd.Flags().GetString("output")
	noXLSX, _ := cmd.Flags().GetBool("no-xlsx")
	publish, _ := cmd.Flags().GetBool("publish")
	download, _ := cmd.Flags().GetString("download")

	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid date %q. Use YYYY-MM-DD: %w", d, err)
		}
	}
	formats, err := parseFormats(download)
	if err != nil {
		return err
	}
	if output == "" {
		output = cfg.ReportOutput
	}
	if len(voucherURLs) == 0 {
		voucherURLs = cfg.VoucherURLs
	}

	whitelist, err := cfg.WhitelistPatterns()
	if err != nil {
		return err
	}

	ledger := reconciliation.New()
	if err := seedLedger(ledger, targetsPath, imports, log); err != nil {
		return err
	}

	var documents []string
	if documentsPath != "" {
		data, err := os.ReadFile(documentsPath)
		if err != nil {
			return fmt.Errorf("failed to read document list: %w", err)
		}
		documents = imei.DocumentNumbers(string(data))
		log.Info().Int("documents", len(documents)).Str("file", documentsPath).Msg("Document list loaded")
	}

	client := nes.NewClient(cfg.ClientConfig())
	opts := scan.Options{
		Range:          services.DateRange{Start: start, End: end},
		ScanSales:      scanSales,
		DocumentFilter: documents,
		IncludeOutside: includeOutside,
		RequireTargets: requireTargets,
		Supplier:       scan.PartyFilter{Name: supplierName, TaxID: supplierTaxID},
		Buyer:          scan.PartyFilter{Name: buyerName, TaxID: buyerTaxID},
		Whitelist:      whitelist,
		VoucherURLs:    voucherURLs,
		SheetRanges:    sheetRanges,
	}

	var scanOptions []scan.Option
	if len(sheetRanges) > 0 {
		svc, err := newSheetsService(context.Background(), cfg)
		if err != nil {
			return err
		}
		scanOptions = append(scanOptions, scan.WithRangeReader(svc))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := scan.New(client, ledger, opts, scanOptions...)
	if err := scanner.Start(ctx); err != nil {
		if errors.Is(err, scan.ErrMissingToken) {
			return fmt.Errorf("missing NES API token. Please set NES_API_TOKEN: %w", err)
		}
		return err
	}

	sum, err := scanner.Wait()
	switch {
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("Scan interrupted, writing partial report")
	case err != nil:
		return fmt.Errorf("scan failed: %w", err)
	}

	printSummary(sum, ledger)

	// Scan context may be cancelled by now; outputs still get written.
	outCtx := context.Background()
	if err := writeOutputs(outCtx, cfg, ledger, output, !noXLSX, publish); err != nil {
		return err
	}

	if len(formats) > 0 && !sum.Cancelled {
		saved, err := scan.NewDownloader(client, cfg.DownloadDir, formats...).Records(ctx, ledger.Records())
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		fmt.Printf("Downloaded documents: %d (%s)\n", saved, cfg.DownloadDir)
	}

	return nil
}

// seedLedger tracks the target list and folds in previously exported reports.
func seedLedger(ledger *reconciliation.Ledger, targetsPath string, imports []string, log zerolog.Logger) error {
	if targetsPath != "" {
		targets, err := voucher.LoadTargets(targetsPath)
		if err != nil {
			return fmt.Errorf("failed to load targets: %w", err)
		}
		added := ledger.Track(targets.Identifiers...)
		merged := ledger.Import(targets.Rows, false)
		log.Info().
			Str("file", targetsPath).
			Int("targets", added).
			Int("rows", merged).
			Msg("Target list loaded")
	}

	reader := voucher.NewReader()
	for _, path := range imports {
		res, err := readWorkbookFile(reader, path)
		if err != nil {
			return err
		}
		merged := ledger.Import(res.LedgerRows(path), true)
		log.Info().Str("file", path).Int("merged", merged).Msg("Report imported")
	}
	return nil
}

func readWorkbookFile(reader *voucher.Reader, path string) (voucher.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return voucher.Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := reader.ReadWorkbook(f, path)
	if err != nil {
		return voucher.Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return res, nil
}

func parseFormats(s string) ([]services.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "xml":
		return []services.Format{services.FormatXML}, nil
	case "pdf":
		return []services.Format{services.FormatPDF}, nil
	case "both":
		return []services.Format{services.FormatXML, services.FormatPDF}, nil
	default:
		return nil, fmt.Errorf("unknown download format %q (xml, pdf, both)", s)
	}
}

func newSheetsService(ctx context.Context, cfg *config.Config) (*sheets.Service, error) {
	if cfg.GoogleSheetURL == "" {
		return nil, fmt.Errorf("GOOGLE_SHEET_URL environment variable is required")
	}
	svc, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL, sheets.Credentials{
		File: cfg.GoogleCredentialsFile,
		JSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets service: %w", err)
	}
	return svc, nil
}

func printSummary(sum scan.Summary, ledger *reconciliation.Ledger) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("                      SCAN RESULT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Scan ID:            %s\n", sum.ScanID)
	fmt.Printf("Purchase documents: %d\n", sum.PurchaseDocuments)
	fmt.Printf("Sale documents:     %d\n", sum.SaleDocuments)
	fmt.Printf("Purchase merges:    %d\n", sum.PurchaseMerges)
	fmt.Printf("Sale merges:        %d\n", sum.SaleMerges)
	fmt.Printf("Voucher merges:     %d\n", sum.ExternalMerges)
	fmt.Printf("Not found:          %d\n", sum.NotFound)
	fmt.Printf("Side rows:          %d\n", sum.SideRows)
	if sum.Duplicates > 0 {
		fmt.Printf("Duplicates:         %d\n", sum.Duplicates)
	}
	if sum.Failures > 0 {
		fmt.Printf("Failures:           %d\n", sum.Failures)
	}
	fmt.Printf("Records:            %d\n", ledger.Len())
	if sum.Cancelled {
		fmt.Println("Status:             interrupted (partial result)")
	}
	fmt.Println(strings.Repeat("=", 60))
}

// writeOutputs writes the xlsx report and optionally publishes it.
func writeOutputs(ctx context.Context, cfg *config.Config, ledger *reconciliation.Ledger, output string, writeXLSX, publish bool) error {
	log := logger.WithComponent("report")
	rows := ledger.ExportRows()

	if writeXLSX {
		if err := report.WriteFile(output, reconciliation.Headers, rows); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Info().Str("file", output).Int("rows", len(rows)).Msg("Report written")
		fmt.Printf("Report: %s (%d rows)\n", output, len(rows))
	}

	if publish {
		svc, err := newSheetsService(ctx, cfg)
		if err != nil {
			return err
		}
		if err := svc.WriteReport(ctx, cfg.GoogleSheetWorksheet, reconciliation.Headers, rows); err != nil {
			return fmt.Errorf("failed to publish report: %w", err)
		}
		log.Info().Str("worksheet", cfg.GoogleSheetWorksheet).Int("rows", len(rows)).Msg("Report published")
		fmt.Printf("Published to worksheet %s\n", cfg.GoogleSheetWorksheet)
	}
	return nil
}
