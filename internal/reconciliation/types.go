package reconciliation

import (
	"strings"

	"imeiledger/internal/taxclass"
	"imeiledger/internal/textmatch"
	"imeiledger/pkg/services"
)

// Status is the inventory state of one device.
type Status string

const (
	// StatusUnknown is used for a tracked identifier nothing is known about yet.
	StatusUnknown         Status = ""
	StatusSellable        Status = "SELLABLE"
	StatusSold            Status = "SOLD"
	StatusPurchaseMissing Status = "PURCHASE_RECORD_MISSING"
	StatusNotFound        Status = "NOT_FOUND_IN_PURCHASES"
)

// ParseStatus reads an exported status. Unknown text maps to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusSellable:
		return StatusSellable
	case StatusSold:
		return StatusSold
	case StatusPurchaseMissing:
		return StatusPurchaseMissing
	case StatusNotFound:
		return StatusNotFound
	}
	return StatusUnknown
}

// Origin records which kinds of source contributed to a record.
type Origin uint8

const (
	OriginInvoice  Origin = 1 << iota // purchase or sale invoice XML
	OriginExternal                    // external ledger row (expense voucher workbook, imported report)
)

// String renders the origin tag used in the export.
func (o Origin) String() string {
	switch {
	case o&OriginInvoice != 0 && o&OriginExternal != 0:
		return "XML+LEDGER"
	case o&OriginInvoice != 0:
		return "XML"
	case o&OriginExternal != 0:
		return "LEDGER"
	}
	return ""
}

// ParseOrigin reads an exported origin tag. NOT_FOUND and unknown text
// yield no origin.
func ParseOrigin(s string) Origin {
	var o Origin
	for _, part := range strings.Split(strings.ToUpper(s), "+") {
		switch strings.TrimSpace(part) {
		case "XML":
			o |= OriginInvoice
		case "LEDGER":
			o |= OriginExternal
		}
	}
	return o
}

// Purchase document types.
const (
	DocTypeInvoice        = "INVOICE"
	DocTypeExpenseVoucher = "EXPENSE_VOUCHER"
)

// Document kind names used in the combined doc-type summary.
const (
	KindInvoice        = "Invoice"
	KindExpenseVoucher = "Expense voucher"
)

// PurchaseInfo holds the first-write-wins purchase fields.
type PurchaseInfo struct {
	TaxID     string
	DocType   string
	Date      string
	DocNumber string
	Party     string
	Amount    string
	Brand     string
	Model     string
}

// SaleInfo holds the first-write-wins sale fields.
type SaleInfo struct {
	Date        string
	Buyer       string
	Amount      string
	Tax         string
	DocNumber   string
	BuyerIDType string
	BuyerID     string
}

// DocumentRef points at a vendor document so it can be downloaded later.
type DocumentRef struct {
	ID        string
	Direction services.Direction
}

// Record is the ledger entry of one device identifier.
type Record struct {
	Identifier string

	Purchase PurchaseInfo
	Sale     SaleInfo

	Status Status
	Origin Origin

	PurchaseVATRates taxclass.RateSet
	SaleVATRates     taxclass.RateSet
	Hints            taxclass.Hints

	// Label and Reasons are recomputed from the rates and hints on every change.
	Label   taxclass.Label
	Reasons []string

	// Annotations is an append-only audit log of anomalies.
	Annotations []string

	// DocKinds lists the kinds of purchase-side documents seen, in first-seen order.
	DocKinds []string

	PurchaseDoc DocumentRef // first purchase invoice
	SaleDoc     DocumentRef // first sale invoice
}

func newRecord(id string) *Record {
	return &Record{
		Identifier:       id,
		PurchaseVATRates: taxclass.NewRateSet(),
		SaleVATRates:     taxclass.NewRateSet(),
	}
}

// HasPurchase reports whether any purchase-side information is present.
func (r *Record) HasPurchase() bool {
	p := r.Purchase
	return p.DocNumber != "" || p.Date != "" || p.TaxID != "" || p.Party != "" || p.DocType != ""
}

// HasSale reports whether a sale document has been merged.
func (r *Record) HasSale() bool {
	s := r.Sale
	return s.DocNumber != "" || s.Date != "" || s.Buyer != ""
}

func (r *Record) annotate(note string) {
	if note = strings.TrimSpace(note); note != "" {
		r.Annotations = append(r.Annotations, note)
	}
}

func (r *Record) addKind(kind string) {
	for _, k := range r.DocKinds {
		if k == kind {
			return
		}
	}
	r.DocKinds = append(r.DocKinds, kind)
}

func (r *Record) reclassify() {
	r.Label, r.Reasons = taxclass.Classify(r.PurchaseVATRates, r.SaleVATRates, r.Hints)
}

// settle derives the status after purchase-side information arrived.
func (r *Record) settle() {
	if r.HasSale() {
		r.Status = StatusSold
		return
	}
	r.Status = StatusSellable
}

func (r *Record) clone() Record {
	c := *r
	c.PurchaseVATRates = r.PurchaseVATRates.Clone()
	c.SaleVATRates = r.SaleVATRates.Clone()
	c.Reasons = append([]string(nil), r.Reasons...)
	c.Annotations = append([]string(nil), r.Annotations...)
	c.DocKinds = append([]string(nil), r.DocKinds...)
	return c
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

// setBrand is first-write-wins except over a placeholder: an unrecognized
// brand such as "Unknown" gives way to a known one.
func setBrand(dst *string, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if !textmatch.KnownBrand(*dst) {
		*dst = v
	}
}
