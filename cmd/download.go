package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imeiledger/internal/logger"
	"imeiledger/internal/nes"
	"imeiledger/internal/scan"
	"imeiledger/pkg/services"
)

var downloadCmd = &cobra.Command{
	Use:   "download [document-id...]",
	Short: "Download invoice documents from the NES API",
	Long: `Download the XML and/or PDF rendering of NES documents by their UUID.

Directions:
  incoming - purchase e-invoices
  outgoing - sale e-invoices
  earchive - e-archive sale invoices`,
	Example: `  imeiledger download --direction incoming 1b4e28ba-2fa1-11d2-883f-0016d3cca427
  imeiledger download --direction earchive --format both --dir ./docs id1 id2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().String("direction", "incoming", "Document direction: incoming, outgoing, earchive")
	downloadCmd.Flags().String("format", "xml", "Format: xml, pdf or both")
	downloadCmd.Flags().String("dir", "", "Target directory (default: DOWNLOAD_DIR)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("download-cmd")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	directionFlag, _ := cmd.Flags().GetString("direction")
	formatFlag, _ := cmd.Flags().GetString("format")
	dir, _ := cmd.Flags().GetString("dir")

	direction, err := services.ParseDirection(directionFlag)
	if err != nil {
		return err
	}
	formats, err := parseFormats(formatFlag)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.DownloadDir
	}

	client := nes.NewClient(cfg.ClientConfig())
	if !client.HasToken() {
		return fmt.Errorf("missing NES API token. Please set NES_API_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("direction", string(direction)).
		Int("documents", len(args)).
		Str("dir", dir).
		Msg("Downloading documents")

	saved, err := scan.NewDownloader(client, dir, formats...).Documents(ctx, direction, args)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	fmt.Printf("Downloaded documents: %d (%s)\n", saved, dir)
	return nil
}
