// Package taxclass derives the tax condition label of a device from the VAT
// rates seen on its purchase and sale documents and from text hints.
package taxclass

import "strings"

// Label is the classification outcome. The zero value means unclassified.
type Label string

const (
	Unclassified Label = ""
	Renewed      Label = "RENEWED"
	SecondHand   Label = "SECOND_HAND"
)

// ParseLabel accepts exported labels in any case.
func ParseLabel(s string) Label {
	switch Label(strings.ToUpper(strings.TrimSpace(s))) {
	case Renewed:
		return Renewed
	case SecondHand:
		return SecondHand
	}
	return Unclassified
}

// Reasons emitted by Classify.
const (
	ReasonSaleVAT1         = "sale VAT=1"
	ReasonPurchase1Sale1   = "purchase VAT 1 → sale VAT 1"
	ReasonPurchase20Sale1  = "purchase VAT 20 → sale VAT 1"
	ReasonVoucherSale1     = "expense-voucher source + sale VAT 1"
	ReasonRefurbishedText  = "text hint: renewed/refurbished"
	ReasonSecondHandText   = "text hint: second-hand"
	ReasonPurchase20Sale20 = "purchase VAT 20 → sale VAT 20"
)

// Hints are the monotonic boolean observations of a device record.
type Hints struct {
	Refurbished    bool
	SecondHand     bool
	ExternalLedger bool
}

// Or returns the union of both hint sets.
func (h Hints) Or(o Hints) Hints {
	return Hints{
		Refurbished:    h.Refurbished || o.Refurbished,
		SecondHand:     h.SecondHand || o.SecondHand,
		ExternalLedger: h.ExternalLedger || o.ExternalLedger,
	}
}

// Covers reports whether every flag set in o is also set in h.
func (h Hints) Covers(o Hints) bool {
	return h.Or(o) == h
}

// Classify is a pure function of its inputs; the first matching branch wins.
func Classify(purchase, sale RateSet, hints Hints) (Label, []string) {
	switch {
	case sale.Has(1):
		reasons := []string{ReasonSaleVAT1}
		if purchase.Has(1) {
			reasons = append(reasons, ReasonPurchase1Sale1)
		}
		if purchase.Has(20) {
			reasons = append(reasons, ReasonPurchase20Sale1)
		}
		if hints.ExternalLedger {
			reasons = append(reasons, ReasonVoucherSale1)
		}
		return Renewed, reasons
	case hints.Refurbished:
		return Renewed, []string{ReasonRefurbishedText}
	case hints.SecondHand:
		reasons := []string{ReasonSecondHandText}
		if purchase.Has(20) && sale.Has(20) {
			reasons = append(reasons, ReasonPurchase20Sale20)
		}
		return SecondHand, reasons
	}
	return Unclassified, nil
}
