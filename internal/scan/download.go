package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"imeiledger/internal/logger"
	"imeiledger/internal/reconciliation"
	"imeiledger/pkg/services"
)

const (
	maxFilenameLength = 120
	defaultFilename   = "DOCUMENT"
	suffixPurchase    = "_PURCHASE"
	suffixSale        = "_SALE"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename makes a document number safe to use as a file name.
func SanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	if s == "" {
		s = defaultFilename
	}
	if utf8.RuneCountInString(s) > maxFilenameLength {
		s = string([]rune(s)[:maxFilenameLength])
	}
	return s
}

// Downloader saves invoice documents to a directory.
type Downloader struct {
	source  services.InvoiceSource
	dir     string
	formats []services.Format
	log     zerolog.Logger
}

// NewDownloader creates a downloader. No formats means XML only.
func NewDownloader(source services.InvoiceSource, dir string, formats ...services.Format) *Downloader {
	if len(formats) == 0 {
		formats = []services.Format{services.FormatXML}
	}
	if dir == "" {
		dir = "."
	}
	return &Downloader{
		source:  source,
		dir:     dir,
		formats: formats,
		log:     logger.WithComponent("download"),
	}
}

// Records saves the first purchase and sale document of every record.
// Documents shared by several records are saved once.
func (d *Downloader) Records(ctx context.Context, records []reconciliation.Record) (int, error) {
	const op = "Downloader.Records"

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	saved := 0
	done := make(map[string]struct{})
	for _, r := range records {
		if ctx.Err() != nil {
			break
		}
		if id := r.PurchaseDoc.ID; id != "" {
			saved += d.save(ctx, done, services.Incoming, id, r.Purchase.DocNumber, suffixPurchase)
		}
		if id := r.SaleDoc.ID; id != "" {
			dir := r.SaleDoc.Direction
			if dir == "" {
				dir = services.EArchive
			}
			saved += d.save(ctx, done, dir, id, r.Sale.DocNumber, suffixSale)
		}
	}

	d.log.Info().Int("saved", saved).Str("dir", d.dir).Msg("Download complete")
	return saved, ctx.Err()
}

// Documents saves documents by vendor id.
func (d *Downloader) Documents(ctx context.Context, dir services.Direction, ids []string) (int, error) {
	const op = "Downloader.Documents"

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	suffix := suffixPurchase
	if dir.IsSale() {
		suffix = suffixSale
	}

	saved := 0
	done := make(map[string]struct{})
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		saved += d.save(ctx, done, dir, id, id, suffix)
	}

	d.log.Info().Int("saved", saved).Str("dir", d.dir).Msg("Download complete")
	return saved, ctx.Err()
}

func (d *Downloader) save(ctx context.Context, done map[string]struct{}, dir services.Direction, id, name, suffix string) int {
	saved := 0
	base := SanitizeFilename(name) + suffix
	for _, format := range d.formats {
		key := fmt.Sprintf("%s/%s/%s", dir, id, format)
		if _, ok := done[key]; ok {
			continue
		}
		done[key] = struct{}{}

		data, err := d.source.FetchDocument(ctx, dir, id, format)
		if err != nil {
			d.log.Warn().
				Err(err).
				Str("document", name).
				Str("format", string(format)).
				Msg("Failed to download document, continuing")
			continue
		}
		path := filepath.Join(d.dir, base+"."+string(format))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			d.log.Warn().Err(err).Str("path", path).Msg("Failed to write document, continuing")
			continue
		}
		d.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Document saved")
		saved++
	}
	return saved
}
