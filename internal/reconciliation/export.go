package reconciliation

import (
	"strings"

	"imeiledger/pkg/models"
)

// Headers are the column titles of the report, in export order.
var Headers = []string{
	"IMEI",
	"Origin",
	"Purchase Tax ID",
	"Purchase Doc Type",
	"Purchase Date",
	"Purchase Doc No",
	"Purchase Party",
	"Purchase Amount",
	"Brand",
	"Model",
	"Sale Date",
	"Sale Buyer",
	"Sale Amount",
	"Sale Tax",
	"Sale Doc No",
	"Buyer ID Type",
	"Buyer ID",
	"Notes",
	"Doc Types",
	"Status",
	"Purchase VAT",
	"Sale VAT",
	"Class",
	"Reasons",
}

// originNotFound tags rows whose identifier no source mentioned.
const originNotFound = "NOT_FOUND"

// Row serializes a record into the report layout.
func (r Record) Row() models.LedgerRow {
	origin := r.Origin.String()
	if origin == "" && r.Status == StatusNotFound {
		origin = originNotFound
	}
	return models.LedgerRow{
		Identifier:      r.Identifier,
		Origin:          origin,
		PurchaseTaxID:   r.Purchase.TaxID,
		PurchaseDocType: r.Purchase.DocType,
		PurchaseDate:    r.Purchase.Date,
		PurchaseDocNo:   r.Purchase.DocNumber,
		PurchaseParty:   r.Purchase.Party,
		PurchaseAmount:  r.Purchase.Amount,
		Brand:           r.Purchase.Brand,
		Model:           r.Purchase.Model,
		SaleDate:        r.Sale.Date,
		SaleBuyer:       r.Sale.Buyer,
		SaleAmount:      r.Sale.Amount,
		SaleTax:         r.Sale.Tax,
		SaleDocNo:       r.Sale.DocNumber,
		BuyerIDType:     r.Sale.BuyerIDType,
		BuyerID:         r.Sale.BuyerID,
		Notes:           strings.Join(r.Annotations, "; "),
		DocTypeSummary:  strings.Join(r.DocKinds, " + "),
		Status:          string(r.Status),
		PurchaseVAT:     r.PurchaseVATRates.String(),
		SaleVAT:         r.SaleVATRates.String(),
		Label:           string(r.Label),
		Reasons:         strings.Join(r.Reasons, "; "),
	}
}

// Rows returns every record followed by the unidentified side rows.
func (l *Ledger) Rows() []models.LedgerRow {
	records := l.Records()
	side := l.Unidentified()
	out := make([]models.LedgerRow, 0, len(records)+len(side))
	for _, r := range records {
		out = append(out, r.Row())
	}
	return append(out, side...)
}

// ExportRows returns the report body as fixed-width string rows.
func (l *Ledger) ExportRows() [][]string {
	rows := l.Rows()
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values())
	}
	return out
}

// Import merges external rows and returns how many were merged.
// Rows without a valid identifier are kept as side rows when keepSide is set.
func (l *Ledger) Import(rows []models.LedgerRow, keepSide bool) int {
	merged := 0
	for _, row := range rows {
		switch l.MergeExternalRow(row) {
		case Merged:
			merged++
		case Rejected:
			if keepSide {
				l.AddUnidentified(row)
			}
		}
	}
	return merged
}
