package scan

import (
	"context"

	"github.com/rs/zerolog"

	"imeiledger/internal/sheets"
	"imeiledger/internal/voucher"
	"imeiledger/pkg/models"
)

// scanVouchers folds expense-voucher sources into the ledger. A failing
// source is logged and skipped.
func (s *Scanner) scanVouchers(ctx context.Context, log zerolog.Logger, sum *Summary) {
	if len(s.opts.VoucherURLs) > 0 && s.fetcher == nil {
		log.Warn().Int("urls", len(s.opts.VoucherURLs)).Msg("No downloader configured, skipping voucher URLs")
	}
	if s.fetcher != nil {
		for _, url := range s.opts.VoucherURLs {
			if ctx.Err() != nil {
				return
			}
			data, err := s.fetcher.FetchURL(ctx, sheets.ExportURL(url))
			if err != nil {
				sum.Failures++
				log.Warn().Err(err).Str("url", url).Msg("Failed to download voucher workbook, continuing")
				continue
			}
			res, err := s.vouchers.ReadWorkbookBytes(data, url)
			if err != nil {
				sum.Failures++
				log.Warn().Err(err).Str("url", url).Msg("Failed to read voucher workbook, continuing")
				continue
			}
			s.mergeVoucherRows(log, sum, res.LedgerRows(url))
		}
	}

	if len(s.opts.SheetRanges) > 0 && s.ranges == nil {
		log.Warn().Int("ranges", len(s.opts.SheetRanges)).Msg("No spreadsheet configured, skipping sheet ranges")
		return
	}
	for _, rng := range s.opts.SheetRanges {
		if ctx.Err() != nil {
			return
		}
		res, err := s.vouchers.ReadSheet(ctx, s.ranges, rng)
		if err != nil {
			sum.Failures++
			log.Warn().Err(err).Str("range", rng).Msg("Failed to read sheet range, continuing")
			continue
		}
		s.mergeVoucherRows(log, sum, res.LedgerRows(rng))
	}
}

func (s *Scanner) mergeVoucherRows(log zerolog.Logger, sum *Summary, rows []models.LedgerRow) {
	merged := 0
	for _, row := range rows {
		if !s.inScope(row.Identifier) {
			continue
		}
		before := sum.ExternalMerges
		count(sum, s.ledger.MergeExternalRow(row), &sum.ExternalMerges)
		merged += sum.ExternalMerges - before
	}
	log.Info().Int("rows", len(rows)).Int("merged", merged).Msg("Voucher rows merged")
}

var _ voucher.RangeReader = (*sheets.Service)(nil)
