package ubl

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"imeiledger/internal/imei"
	"imeiledger/internal/textmatch"
	"imeiledger/pkg/models"
)

var (
	tcknPattern = regexp.MustCompile(`^[0-9]{11}$`)
	vknPattern  = regexp.MustCompile(`^[0-9]{10}$`)
)

// canonicalRates are the only rates trusted when a document has no
// line level tax subtotals.
var canonicalRates = map[int]bool{1: true, 8: true, 10: true, 18: true, 20: true}

// Parse normalizes one UBL invoice. Malformed XML yields an empty invoice
// rather than an error; callers skip invoices for which Empty reports true.
func Parse(data []byte) *models.Invoice {
	var doc xmlInvoice
	if err := xml.Unmarshal(data, &doc); err != nil {
		return &models.Invoice{}
	}

	inv := &models.Invoice{
		InvoiceNumber: clean(doc.ID),
		IssueDate:     clean(doc.IssueDate),
		PayableAmount: parseDecimal(doc.PayableAmount),
	}
	if len(doc.TaxAmounts) > 0 {
		inv.TaxTotal = parseDecimal(doc.TaxAmounts[0])
	}

	inv.BuyerName = doc.Customer.displayName()
	inv.BuyerTaxID, inv.BuyerIDType = doc.Customer.taxID()
	inv.SupplierName = doc.Supplier.displayName()
	inv.SupplierTaxID, inv.SupplierIDType = doc.Supplier.taxID()

	var notes []string
	for _, n := range doc.Notes {
		if n = clean(n); n != "" {
			notes = append(notes, n)
		}
	}
	inv.Description = strings.Join(notes, " | ")

	var lineRates []int
	for _, l := range doc.Lines {
		blob := l.blob()
		if blob == "" {
			continue
		}
		line := models.InvoiceLine{
			Blob:      blob,
			UnitPrice: parseDecimal(l.PriceAmount),
			LineTotal: parseDecimal(l.LineExtension),
			Quantity:  parseDecimal(l.Quantity),
			VATRate:   l.vatRate(),
		}
		if line.VATRate != nil {
			lineRates = append(lineRates, *line.VATRate)
		}
		inv.Lines = append(inv.Lines, line)
		inv.Items = append(inv.Items, blob)
	}

	if len(lineRates) == 0 {
		lineRates = documentRateCandidates(data)
	}
	inv.VATRate = mode(lineRates)

	hay := strings.Join(append([]string{inv.Description}, inv.Items...), " \n ")
	inv.Identifiers = imei.Extract(hay)
	inv.Brand = textmatch.Brand(hay)
	if len(inv.Lines) > 0 {
		inv.Model = inv.Lines[0].Blob
	}
	inv.TextUpper = textmatch.Upper(hay)
	return inv
}

func (p xmlParty) displayName() string {
	if p.Person != nil {
		if name := strings.TrimSpace(clean(p.Person.FirstName) + " " + clean(p.Person.FamilyName)); name != "" {
			return name
		}
	}
	return clean(p.Name)
}

// taxID prefers an explicit VKN/TCKN identification over trade registry
// numbers and infers the scheme from the digit count when it is missing.
func (p xmlParty) taxID() (id, scheme string) {
	if len(p.Identifications) == 0 {
		return "", ""
	}
	pick := p.Identifications[0]
	for _, c := range p.Identifications {
		s := strings.ToUpper(strings.TrimSpace(c.SchemeID))
		if s == "VKN" || s == "TCKN" {
			pick = c
			break
		}
	}
	id = clean(pick.Value)
	scheme = strings.TrimSpace(pick.SchemeID)
	if scheme == "" {
		switch {
		case tcknPattern.MatchString(id):
			scheme = "TCKN"
		case vknPattern.MatchString(id):
			scheme = "VKN"
		}
	}
	return id, scheme
}

func (l xmlLine) blob() string {
	parts := []string{clean(l.ItemName), clean(l.ItemDescription)}
	for _, v := range l.PropertyValues {
		if v = clean(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// vatRate tries the line tax subtotal, then the item tax category,
// then any Percent element below the line.
func (l xmlLine) vatRate() *int {
	for _, group := range [][]string{l.TaxPercents, l.ItemTaxPercents} {
		if len(group) > 0 {
			if r := parseRate(group[0]); r != nil {
				return r
			}
		}
	}
	if all := scanPercents(l.Inner).all; len(all) > 0 {
		return parseRate(all[0])
	}
	return nil
}

// documentRateCandidates collects every TaxTotal/TaxSubtotal/Percent in the
// document, or failing that every canonical Percent value.
func documentRateCandidates(data []byte) []int {
	found := scanPercents(data)
	var out []int
	for _, p := range found.subtotal {
		if r := parseRate(p); r != nil {
			out = append(out, *r)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, p := range found.all {
		if r := parseRate(p); r != nil && canonicalRates[*r] {
			out = append(out, *r)
		}
	}
	return out
}

type percentScan struct {
	all      []string
	subtotal []string // Percent directly under TaxTotal>TaxSubtotal
}

// scanPercents walks the token stream and records Percent element text in
// document order. Decoding stops quietly at the first syntax error.
func scanPercents(data []byte) percentScan {
	var res percentScan
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	var stack []string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return res
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n := len(stack)
			if n == 0 {
				continue
			}
			if stack[n-1] == "Percent" {
				v := strings.TrimSpace(text.String())
				res.all = append(res.all, v)
				if n >= 3 && stack[n-2] == "TaxSubtotal" && stack[n-3] == "TaxTotal" {
					res.subtotal = append(res.subtotal, v)
				}
			}
			stack = stack[:n-1]
			text.Reset()
		}
	}
}

// mode returns the most frequent rate; ties go to the first seen.
func mode(rates []int) *int {
	if len(rates) == 0 {
		return nil
	}
	counts := make(map[int]int, len(rates))
	top := 0
	for _, r := range rates {
		counts[r]++
		if counts[r] > top {
			top = counts[r]
		}
	}
	for _, r := range rates {
		if counts[r] == top {
			return &r
		}
	}
	return nil
}

func parseRate(s string) *int {
	d := parseDecimal(s)
	if !d.Valid {
		return nil
	}
	r := int(d.Decimal.Round(0).IntPart())
	return &r
}

func parseDecimal(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
