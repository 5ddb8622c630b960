package models

import "strings"

// LedgerRowWidth is the number of columns in the report layout.
const LedgerRowWidth = 24

// LedgerRow is one row of the 24-column report, either produced by the
// ledger export or read back from a spreadsheet. Every field is text so
// that spreadsheet content survives untouched.
type LedgerRow struct {
	Identifier      string // imei
	Origin          string // XML, LEDGER, XML+LEDGER, NOT_FOUND
	PurchaseTaxID   string
	PurchaseDocType string
	PurchaseDate    string
	PurchaseDocNo   string
	PurchaseParty   string
	PurchaseAmount  string
	Brand           string
	Model           string
	SaleDate        string
	SaleBuyer       string
	SaleAmount      string
	SaleTax         string
	SaleDocNo       string
	BuyerIDType     string
	BuyerID         string
	Notes           string
	DocTypeSummary  string
	Status          string
	PurchaseVAT     string // comma-joined sorted ints
	SaleVAT         string // comma-joined sorted ints
	Label           string
	Reasons         string // semicolon-joined

	// Source names the workbook, sheet or URL the row was read from.
	// It is not part of the exported layout.
	Source string
}

// Values returns the row in export column order.
func (r LedgerRow) Values() []string {
	return []string{
		r.Identifier, r.Origin, r.PurchaseTaxID, r.PurchaseDocType, r.PurchaseDate,
		r.PurchaseDocNo, r.PurchaseParty, r.PurchaseAmount, r.Brand, r.Model,
		r.SaleDate, r.SaleBuyer, r.SaleAmount, r.SaleTax, r.SaleDocNo,
		r.BuyerIDType, r.BuyerID, r.Notes, r.DocTypeSummary, r.Status,
		r.PurchaseVAT, r.SaleVAT, r.Label, r.Reasons,
	}
}

// LedgerRowFromValues builds a row from export-ordered cells. Short input
// is padded with empty cells and extra cells are ignored.
func LedgerRowFromValues(values []string) LedgerRow {
	v := make([]string, LedgerRowWidth)
	for i := 0; i < len(values) && i < LedgerRowWidth; i++ {
		v[i] = strings.TrimSpace(values[i])
	}
	return LedgerRow{
		Identifier: v[0], Origin: v[1], PurchaseTaxID: v[2], PurchaseDocType: v[3], PurchaseDate: v[4],
		PurchaseDocNo: v[5], PurchaseParty: v[6], PurchaseAmount: v[7], Brand: v[8], Model: v[9],
		SaleDate: v[10], SaleBuyer: v[11], SaleAmount: v[12], SaleTax: v[13], SaleDocNo: v[14],
		BuyerIDType: v[15], BuyerID: v[16], Notes: v[17], DocTypeSummary: v[18], Status: v[19],
		PurchaseVAT: v[20], SaleVAT: v[21], Label: v[22], Reasons: v[23],
	}
}

// HasSale reports whether any sale column is filled.
func (r LedgerRow) HasSale() bool {
	return r.SaleDate != "" || r.SaleBuyer != "" || r.SaleAmount != "" || r.SaleDocNo != ""
}

// VoucherItem is a loosely structured expense-voucher row whose columns
// were located heuristically.
type VoucherItem struct {
	Identifier  string
	Date        string
	Amount      string
	Party       string
	Branch      string
	Description string
}
