package scan

import (
	"context"

	"github.com/rs/zerolog"

	"imeiledger/internal/reconciliation"
	"imeiledger/internal/taxclass"
	"imeiledger/internal/textmatch"
	"imeiledger/internal/ubl"
	"imeiledger/pkg/models"
	"imeiledger/pkg/services"
)

const (
	noteRefurbishedNoID = "refurbished product without IMEI"
	noteRenewalService  = "CEP TELEFONU YENILEME HIZMETI"
	kindService         = "Invoice (service)"
	reasonRenewal       = "renewal invoice, match against expense vouchers"
)

// fetchInvoice downloads and parses one listed document. It returns nil
// when the document should be skipped.
func (s *Scanner) fetchInvoice(ctx context.Context, log zerolog.Logger, sum *Summary, dir services.Direction, meta services.InvoiceMeta, i, total int) *models.Invoice {
	data, err := s.source.FetchDocument(ctx, dir, meta.ID, services.FormatXML)
	if err != nil {
		sum.Failures++
		log.Warn().
			Err(err).
			Str("direction", string(dir)).
			Str("document", meta.DocumentNumber).
			Int("index", i+1).
			Int("total", total).
			Msg("Failed to download invoice XML, continuing")
		return nil
	}
	inv := ubl.Parse(data)
	if inv.Empty() {
		sum.Skipped++
		log.Warn().
			Str("direction", string(dir)).
			Str("document", meta.DocumentNumber).
			Msg("Invoice XML could not be parsed, skipping")
		return nil
	}
	return inv
}

func invoiceHints(inv *models.Invoice) taxclass.Hints {
	return taxclass.Hints{
		Refurbished: textmatch.HasRefurbishedHint(inv.TextUpper),
		SecondHand:  textmatch.HasSecondHandHint(inv.TextUpper),
	}
}

func (s *Scanner) scanPurchases(ctx context.Context, log zerolog.Logger, sum *Summary) {
	log.Info().Msg("Scanning purchase invoices")

	metas, err := s.source.ListInvoices(ctx, services.Incoming, s.opts.Range)
	if err != nil {
		log.Warn().Err(err).Int("listed", len(metas)).Msg("Purchase listing incomplete")
	}

	found := make(map[string]struct{})
	var refurbished, renewals []models.LedgerRow

	for i, meta := range metas {
		if ctx.Err() != nil {
			break
		}
		inv := s.fetchInvoice(ctx, log, sum, services.Incoming, meta, i, len(metas))
		if inv == nil {
			continue
		}
		sum.PurchaseDocuments++
		docNo := inv.DocumentNumber(meta.DocumentNumber, meta.ID)

		if len(inv.Identifiers) == 0 && s.whitelisted(inv.SupplierName) {
			log.Debug().
				Str("document", docNo).
				Str("supplier", inv.SupplierName).
				Msg("Whitelisted supplier without identifiers, skipping")
			continue
		}
		if !s.opts.Supplier.matches(inv.SupplierName, inv.SupplierTaxID) {
			continue
		}

		hints := invoiceHints(inv)
		for _, id := range inv.Identifiers {
			if !s.inScope(id) {
				continue
			}
			entry := purchaseEntry(inv, meta.ID, docNo, id, hints)
			count(sum, s.ledger.MergePurchase(entry), &sum.PurchaseMerges)
			found[id] = struct{}{}

			log.Debug().
				Str("imei", id).
				Str("document", docNo).
				Str("amount", entry.Amount).
				Str("brand", entry.Brand).
				Msg("Purchase merged")
		}

		if len(inv.Identifiers) == 0 {
			if hints.Refurbished {
				refurbished = append(refurbished, sideRow(inv, docNo, noteRefurbishedNoID, reconciliation.KindInvoice, reconciliation.StatusSellable, ""))
			}
			if textmatch.MentionsRenewalService(inv.TextUpper) {
				note := inv.Description
				if note == "" {
					note = noteRenewalService
				}
				renewals = append(renewals, sideRow(inv, docNo, note, kindService, reconciliation.StatusPurchaseMissing, reasonRenewal))
			}
		}
	}

	for _, row := range append(refurbished, renewals...) {
		s.ledger.AddUnidentified(row)
		sum.SideRows++
	}

	if ctx.Err() != nil {
		return
	}

	var missing []string
	for id := range s.targets {
		if _, ok := found[id]; ok {
			continue
		}
		if s.ledger.RecordNotFound(id) == reconciliation.Merged {
			sum.NotFound++
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		log.Info().Int("missing", len(missing)).Msg("Targets not found in purchase invoices")
	}
}

// purchaseEntry takes amount, brand and model from the line mentioning the
// identifier, falling back to the invoice totals and summary.
func purchaseEntry(inv *models.Invoice, docID, docNo, id string, hints taxclass.Hints) reconciliation.PurchaseEntry {
	e := reconciliation.PurchaseEntry{
		Identifier:  id,
		DocumentKey: docNo,
		DocumentID:  docID,
		DocType:     reconciliation.DocTypeInvoice,
		TaxID:       inv.SupplierTaxID,
		Date:        inv.IssueDate,
		Party:       inv.SupplierName,
		Amount:      models.FormatAmount(inv.PayableAmount),
		Brand:       inv.Brand,
		Model:       inv.Model,
		VATRate:     inv.VATRateFor(id),
		Hints:       hints,
	}
	if line, ok := inv.LineFor(id); ok {
		switch {
		case line.UnitPrice.Valid:
			e.Amount = models.FormatAmount(line.UnitPrice)
		case line.LineTotal.Valid:
			e.Amount = models.FormatAmount(line.LineTotal)
		}
		e.Model = line.Blob
		e.Brand = textmatch.Brand(line.Blob)
	}
	return e
}

func sideRow(inv *models.Invoice, docNo, note, kind string, status reconciliation.Status, reasons string) models.LedgerRow {
	model := inv.Model
	if model == "" && len(inv.Items) > 0 {
		model = inv.Items[0]
	}
	return models.LedgerRow{
		Origin:          reconciliation.OriginInvoice.String(),
		PurchaseTaxID:   inv.SupplierTaxID,
		PurchaseDocType: reconciliation.DocTypeInvoice,
		PurchaseDate:    inv.IssueDate,
		PurchaseDocNo:   docNo,
		PurchaseParty:   inv.SupplierName,
		PurchaseAmount:  models.FormatAmount(inv.PayableAmount),
		Brand:           textmatch.Brand(inv.TextUpper),
		Model:           model,
		Notes:           note,
		DocTypeSummary:  kind,
		Status:          string(status),
		Reasons:         reasons,
	}
}
