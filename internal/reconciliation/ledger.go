// Package reconciliation keeps one record per device identifier and folds
// purchase invoices, sale invoices and external ledger rows into it.
package reconciliation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"imeiledger/internal/imei"
	"imeiledger/internal/logger"
	"imeiledger/internal/taxclass"
	"imeiledger/internal/textmatch"
	"imeiledger/pkg/models"
	"imeiledger/pkg/services"
)

// Outcome tells the caller what a merge did.
type Outcome int

const (
	// Merged means the document contributed to the record.
	Merged Outcome = iota
	// Duplicate means the (document, identifier) pair was already merged; only an annotation was added.
	Duplicate
	// AdditionalSale means a second, different sale document was annotated.
	AdditionalSale
	// Rejected means the identifier failed validation and was not stored.
	Rejected
	// Unchanged means the call had nothing to do.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Merged:
		return "merged"
	case Duplicate:
		return "duplicate"
	case AdditionalSale:
		return "additional_sale"
	case Rejected:
		return "rejected"
	case Unchanged:
		return "unchanged"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// PurchaseEntry is one identifier found on a purchase document.
type PurchaseEntry struct {
	Identifier  string
	DocumentKey string // document number, used for duplicate detection
	DocumentID  string // vendor id, kept for downloads
	DocType     string // defaults to DocTypeInvoice
	TaxID       string
	Date        string
	Party       string
	Amount      string
	Brand       string
	Model       string
	VATRate     *int
	Hints       taxclass.Hints
}

// SaleEntry is one identifier found on a sale document.
type SaleEntry struct {
	Identifier  string
	DocumentKey string
	DocumentID  string
	Direction   services.Direction
	Date        string
	Buyer       string
	Amount      string
	Tax         string
	BuyerIDType string
	BuyerID     string
	VATRate     *int
	Hints       taxclass.Hints
}

type pairKey struct {
	document   string
	identifier string
}

// Ledger is safe for concurrent use; every merge is serialized.
type Ledger struct {
	mu sync.Mutex

	records map[string]*Record
	order   []string
	targets []string

	seenPurchase map[pairKey]struct{}
	seenSale     map[pairKey]struct{}
	seenExternal map[pairKey]struct{}

	// side rows reported outside the ledger proper
	unidentified []models.LedgerRow

	log zerolog.Logger
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		records:      make(map[string]*Record),
		seenPurchase: make(map[pairKey]struct{}),
		seenSale:     make(map[pairKey]struct{}),
		seenExternal: make(map[pairKey]struct{}),
		log:          logger.WithComponent("ledger"),
	}
}

// Track registers explicitly requested identifiers. Invalid ones are
// skipped. It returns how many identifiers were newly tracked.
func (l *Ledger) Track(ids ...string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !imei.Validate(id) {
			continue
		}
		if _, ok := l.records[id]; ok {
			if !l.isTarget(id) {
				l.targets = append(l.targets, id)
			}
			continue
		}
		l.get(id)
		l.targets = append(l.targets, id)
		added++
	}
	return added
}

// Targets returns the explicitly requested identifiers in request order.
func (l *Ledger) Targets() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.targets...)
}

// Has reports whether the identifier has a record.
func (l *Ledger) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[id]
	return ok
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Record returns a snapshot of one record.
func (l *Ledger) Record(id string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Records returns snapshots of all records in creation order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.records[id].clone())
	}
	return out
}

// MergePurchase folds one purchase observation into the ledger.
func (l *Ledger) MergePurchase(e PurchaseEntry) Outcome {
	if !imei.Validate(e.Identifier) {
		return Rejected
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pairKey{document: e.DocumentKey, identifier: e.Identifier}
	r := l.get(e.Identifier)
	if _, seen := l.seenPurchase[key]; seen {
		r.annotate("duplicate purchase: " + e.DocumentKey)
		l.log.Debug().Str("imei", e.Identifier).Str("document", e.DocumentKey).Msg("Duplicate purchase merge")
		return Duplicate
	}
	l.seenPurchase[key] = struct{}{}

	docType := e.DocType
	if docType == "" {
		docType = DocTypeInvoice
	}
	p := &r.Purchase
	setOnce(&p.TaxID, e.TaxID)
	setOnce(&p.DocType, docType)
	setOnce(&p.Date, e.Date)
	setOnce(&p.DocNumber, e.DocumentKey)
	setOnce(&p.Party, e.Party)
	setOnce(&p.Amount, e.Amount)
	setBrand(&p.Brand, e.Brand)
	setOnce(&p.Model, e.Model)
	if r.PurchaseDoc.ID == "" && e.DocumentID != "" {
		r.PurchaseDoc = DocumentRef{ID: e.DocumentID, Direction: services.Incoming}
	}

	r.Origin |= OriginInvoice
	if docType == DocTypeExpenseVoucher {
		r.addKind(KindExpenseVoucher)
	} else {
		r.addKind(KindInvoice)
	}
	r.Hints = r.Hints.Or(e.Hints)
	if e.VATRate != nil {
		r.PurchaseVATRates.Add(*e.VATRate)
	}
	r.settle()
	r.reclassify()
	return Merged
}

// MergeSale folds one sale observation into the ledger. The first sale
// document wins; later different documents are only annotated.
func (l *Ledger) MergeSale(e SaleEntry) Outcome {
	if !imei.Validate(e.Identifier) {
		return Rejected
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pairKey{document: e.DocumentKey, identifier: e.Identifier}
	r := l.get(e.Identifier)
	if _, seen := l.seenSale[key]; seen {
		r.annotate("duplicate sale: " + e.DocumentKey)
		l.log.Debug().Str("imei", e.Identifier).Str("document", e.DocumentKey).Msg("Duplicate sale merge")
		return Duplicate
	}
	l.seenSale[key] = struct{}{}

	outcome := Merged
	r.Hints = r.Hints.Or(e.Hints)
	if e.VATRate != nil {
		r.SaleVATRates.Add(*e.VATRate)
	}
	r.Origin |= OriginInvoice

	if existing := r.Sale.DocNumber; existing != "" && existing != e.DocumentKey {
		r.annotate(fmt.Sprintf("multiple sales: %s (kept %s)", e.DocumentKey, existing))
		outcome = AdditionalSale
	} else {
		s := &r.Sale
		setOnce(&s.Date, e.Date)
		setOnce(&s.Buyer, e.Buyer)
		setOnce(&s.Amount, e.Amount)
		setOnce(&s.Tax, e.Tax)
		setOnce(&s.DocNumber, e.DocumentKey)
		setOnce(&s.BuyerIDType, e.BuyerIDType)
		setOnce(&s.BuyerID, e.BuyerID)
		if r.SaleDoc.ID == "" && e.DocumentID != "" {
			r.SaleDoc = DocumentRef{ID: e.DocumentID, Direction: e.Direction}
		}
	}
	r.Status = StatusSold
	r.reclassify()
	return outcome
}

// MergeExternalRow folds a pre-parsed external ledger row. The row is keyed
// by its source and purchase document number for duplicate detection.
func (l *Ledger) MergeExternalRow(row models.LedgerRow) Outcome {
	id := strings.TrimSpace(row.Identifier)
	if !imei.Validate(id) {
		return Rejected
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	docKey := row.Source + "|" + row.PurchaseDocNo
	key := pairKey{document: docKey, identifier: id}
	r := l.get(id)
	if _, seen := l.seenExternal[key]; seen {
		r.annotate("duplicate ledger row: " + strings.Trim(docKey, "|"))
		l.log.Debug().Str("imei", id).Str("document", docKey).Msg("Duplicate ledger row merge")
		return Duplicate
	}
	l.seenExternal[key] = struct{}{}

	p := &r.Purchase
	setOnce(&p.TaxID, row.PurchaseTaxID)
	setOnce(&p.DocType, row.PurchaseDocType)
	setOnce(&p.Date, row.PurchaseDate)
	setOnce(&p.DocNumber, row.PurchaseDocNo)
	setOnce(&p.Party, row.PurchaseParty)
	setOnce(&p.Amount, row.PurchaseAmount)
	brand := row.Brand
	if !textmatch.KnownBrand(brand) && row.Model != "" {
		brand = textmatch.Brand(row.Model)
	}
	setBrand(&p.Brand, brand)
	setOnce(&p.Model, row.Model)

	s := &r.Sale
	if s.DocNumber == "" || row.SaleDocNo == "" || row.SaleDocNo == s.DocNumber {
		setOnce(&s.Date, row.SaleDate)
		setOnce(&s.Buyer, row.SaleBuyer)
		setOnce(&s.Amount, row.SaleAmount)
		setOnce(&s.Tax, row.SaleTax)
		setOnce(&s.DocNumber, row.SaleDocNo)
		setOnce(&s.BuyerIDType, row.BuyerIDType)
		setOnce(&s.BuyerID, row.BuyerID)
	} else {
		r.annotate(fmt.Sprintf("multiple sales: %s (kept %s)", row.SaleDocNo, s.DocNumber))
	}

	origin := rowOrigin(row)
	r.Origin |= origin
	kinds := splitKinds(row.DocTypeSummary)
	if len(kinds) == 0 && origin&OriginExternal != 0 {
		kinds = []string{KindExpenseVoucher}
	}
	for _, k := range kinds {
		r.addKind(k)
	}

	r.PurchaseVATRates.AddAll(taxclass.ParseRateSet(row.PurchaseVAT))
	r.SaleVATRates.AddAll(taxclass.ParseRateSet(row.SaleVAT))
	r.Hints = r.Hints.Or(rowHints(row, origin))
	r.annotate(row.Notes)

	// A row without purchase fields is no purchase evidence; an exported
	// not-found or purchase-missing row keeps its status.
	switch {
	case r.HasPurchase():
		r.settle()
	case r.Status == StatusUnknown:
		r.Status = ParseStatus(row.Status)
		if r.Status == StatusUnknown && r.HasSale() {
			r.Status = StatusSold
		}
	}
	r.reclassify()
	return Merged
}

// rowOrigin maps the origin tag of an external row. Rows with no tag come
// from an external ledger.
func rowOrigin(row models.LedgerRow) Origin {
	if o := ParseOrigin(row.Origin); o != 0 {
		return o
	}
	if strings.EqualFold(strings.TrimSpace(row.Origin), originNotFound) {
		return 0
	}
	return OriginExternal
}

// RecordNotFound marks a requested identifier that no purchase document
// mentioned. Records that already carry purchase information are left alone.
func (l *Ledger) RecordNotFound(id string) Outcome {
	if !imei.Validate(id) {
		return Rejected
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.get(id)
	if r.HasPurchase() {
		return Unchanged
	}
	if r.HasSale() {
		r.Status = StatusPurchaseMissing
		r.annotate("sold without a purchase record")
	} else {
		r.Status = StatusNotFound
		r.annotate("not found in purchase invoices")
	}
	r.reclassify()
	return Merged
}

// AddUnidentified stores a side row for a document that carries no device
// identifier, e.g. a refurbishment invoice. Side rows never merge.
func (l *Ledger) AddUnidentified(row models.LedgerRow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unidentified = append(l.unidentified, row)
}

// Unidentified returns the side rows in insertion order.
func (l *Ledger) Unidentified() []models.LedgerRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.LedgerRow(nil), l.unidentified...)
}

func (l *Ledger) get(id string) *Record {
	if r, ok := l.records[id]; ok {
		return r
	}
	r := newRecord(id)
	l.records[id] = r
	l.order = append(l.order, id)
	return r
}

func (l *Ledger) isTarget(id string) bool {
	for _, t := range l.targets {
		if t == id {
			return true
		}
	}
	return false
}

func splitKinds(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "+") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// rowHints restores hint flags from an external row. Exported reports carry
// the label and reasons, so those are read back alongside the model text.
func rowHints(row models.LedgerRow, origin Origin) taxclass.Hints {
	h := taxclass.Hints{
		ExternalLedger: origin&OriginExternal != 0 || strings.Contains(row.Reasons, taxclass.ReasonVoucherSale1),
		Refurbished:    textmatch.HasRefurbishedHint(row.Model),
		SecondHand:     textmatch.HasSecondHandHint(row.Model),
	}
	reasons := row.Reasons
	if strings.Contains(reasons, taxclass.ReasonRefurbishedText) {
		h.Refurbished = true
	}
	if strings.Contains(reasons, taxclass.ReasonSecondHandText) {
		h.SecondHand = true
	}
	switch taxclass.ParseLabel(row.Label) {
	case taxclass.Renewed:
		if !taxclass.ParseRateSet(row.SaleVAT).Has(1) {
			h.Refurbished = true
		}
	case taxclass.SecondHand:
		h.SecondHand = true
	}
	return h
}
