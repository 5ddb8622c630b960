package scan

import (
	"context"

	"github.com/rs/zerolog"

	"imeiledger/internal/reconciliation"
	"imeiledger/internal/taxclass"
	"imeiledger/pkg/models"
	"imeiledger/pkg/services"
)

// saleDirections are scanned in this order.
var saleDirections = []services.Direction{services.EArchive, services.Outgoing}

// scanSales merges sale documents. With filtered set, only documents in the
// document filter are read and their identifiers become targets.
func (s *Scanner) scanSales(ctx context.Context, log zerolog.Logger, sum *Summary, filtered bool) {
	for _, dir := range saleDirections {
		if ctx.Err() != nil {
			return
		}
		log.Info().Str("direction", string(dir)).Bool("filtered", filtered).Msg("Scanning sale invoices")

		metas, err := s.source.ListInvoices(ctx, dir, s.opts.Range)
		if err != nil {
			log.Warn().Err(err).Str("direction", string(dir)).Int("listed", len(metas)).Msg("Sale listing incomplete")
		}

		for i, meta := range metas {
			if ctx.Err() != nil {
				break
			}
			if filtered && meta.DocumentNumber != "" && !s.wantDocument(meta.DocumentNumber) {
				continue
			}
			inv := s.fetchInvoice(ctx, log, sum, dir, meta, i, len(metas))
			if inv == nil {
				continue
			}
			docNo := inv.DocumentNumber(meta.DocumentNumber, meta.ID)
			if filtered && !s.wantDocument(docNo) {
				continue
			}
			sum.SaleDocuments++

			if !s.opts.Buyer.matches(inv.BuyerName, inv.BuyerTaxID) {
				continue
			}
			if len(inv.Identifiers) == 0 {
				log.Debug().Str("document", docNo).Msg("Sale invoice without identifiers")
				continue
			}

			hints := invoiceHints(inv)
			for _, id := range inv.Identifiers {
				if !s.inScope(id) {
					continue
				}
				if filtered {
					s.track(id)
				}
				entry := saleEntry(inv, dir, meta.ID, docNo, id, hints)
				count(sum, s.ledger.MergeSale(entry), &sum.SaleMerges)
			}
		}
	}
}

func saleEntry(inv *models.Invoice, dir services.Direction, docID, docNo, id string, hints taxclass.Hints) reconciliation.SaleEntry {
	return reconciliation.SaleEntry{
		Identifier:  id,
		DocumentKey: docNo,
		DocumentID:  docID,
		Direction:   dir,
		Date:        inv.IssueDate,
		Buyer:       inv.BuyerName,
		Amount:      models.FormatAmount(inv.PayableAmount),
		Tax:         models.FormatAmount(inv.TaxTotal),
		BuyerIDType: inv.BuyerIDType,
		BuyerID:     inv.BuyerTaxID,
		VATRate:     inv.VATRateFor(id),
		Hints:       hints,
	}
}
