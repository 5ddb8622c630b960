package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Invoice is the normalized view of one UBL invoice document.
// It is built once by the parser and treated as read-only afterwards.
type Invoice struct {
	// Document header
	InvoiceNumber string // cbc:ID
	IssueDate     string // cbc:IssueDate, as written in the document (YYYY-MM-DD)

	// Parties
	SupplierName   string
	SupplierTaxID  string
	SupplierIDType string // schemeID or inferred TCKN/VKN
	BuyerName      string
	BuyerTaxID     string
	BuyerIDType    string

	// Totals
	PayableAmount decimal.NullDecimal // cac:LegalMonetaryTotal/cbc:PayableAmount
	TaxTotal      decimal.NullDecimal // cac:TaxTotal/cbc:TaxAmount

	// Free text
	Description string   // all cbc:Note values joined with " | "
	Items       []string // line blobs, same order as Lines

	Lines []InvoiceLine

	// VATRate is the invoice level rate: mode of the line rates or the
	// canonical-rate fallback. Nil when the document carries no rate.
	VATRate *int

	Identifiers []string // sorted, valid IMEIs found in notes and lines
	Brand       string
	Model       string
	TextUpper   string // transliterated upper-case haystack used for hint matching
}

// InvoiceLine is a single cac:InvoiceLine with a non-empty text blob.
type InvoiceLine struct {
	Blob      string
	UnitPrice decimal.NullDecimal
	LineTotal decimal.NullDecimal
	Quantity  decimal.NullDecimal
	VATRate   *int
}

// Empty reports whether nothing at all could be read from the document.
// Malformed XML always yields an empty invoice.
func (inv *Invoice) Empty() bool {
	return len(inv.Identifiers) == 0 && len(inv.Lines) == 0 && inv.Description == "" && inv.InvoiceNumber == ""
}

// LineFor returns the first line whose blob mentions the identifier.
func (inv *Invoice) LineFor(identifier string) (InvoiceLine, bool) {
	if identifier == "" {
		return InvoiceLine{}, false
	}
	for _, line := range inv.Lines {
		if strings.Contains(line.Blob, identifier) {
			return line, true
		}
	}
	return InvoiceLine{}, false
}

// VATRateFor returns the rate that applies to the identifier: the rate of
// the line mentioning it, falling back to the invoice level rate.
func (inv *Invoice) VATRateFor(identifier string) *int {
	if line, ok := inv.LineFor(identifier); ok && line.VATRate != nil {
		return line.VATRate
	}
	return inv.VATRate
}

// DocumentNumber returns the invoice number, or the first non-empty fallback.
func (inv *Invoice) DocumentNumber(fallbacks ...string) string {
	if inv.InvoiceNumber != "" {
		return inv.InvoiceNumber
	}
	for _, f := range fallbacks {
		if f != "" {
			return f
		}
	}
	return ""
}

// FormatAmount renders an optional amount with two decimals, or "" when absent.
func FormatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
