package reconciliation

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imeiledger/internal/taxclass"
	"imeiledger/pkg/models"
	"imeiledger/pkg/services"
)

const (
	idA = "490154203237518"
	idB = "352099001761481"
	idC = "356938035643809"
)

func rate(v int) *int { return &v }

func purchase(id, doc string, vat int) PurchaseEntry {
	return PurchaseEntry{
		Identifier:  id,
		DocumentKey: doc,
		DocumentID:  "id-" + doc,
		TaxID:       "1234567890",
		Date:        "2024-03-15",
		Party:       "Supplier Ltd",
		Amount:      "1000.00",
		Brand:       "APPLE",
		Model:       "APPLE IPHONE 11",
		VATRate:     rate(vat),
	}
}

func sale(id, doc string, vat int) SaleEntry {
	return SaleEntry{
		Identifier:  id,
		DocumentKey: doc,
		DocumentID:  "id-" + doc,
		Direction:   services.EArchive,
		Date:        "2024-04-01",
		Buyer:       "Ayşe Yılmaz",
		Amount:      "1500.00",
		Tax:         "15.00",
		BuyerIDType: "TCKN",
		BuyerID:     "12345678901",
		VATRate:     rate(vat),
	}
}

func TestMergePurchase(t *testing.T) {
	l := New()
	assert.Equal(t, Merged, l.MergePurchase(purchase(idA, "EFR1", 20)))

	r, ok := l.Record(idA)
	require.True(t, ok)
	assert.Equal(t, StatusSellable, r.Status)
	assert.Equal(t, OriginInvoice, r.Origin)
	assert.Equal(t, DocTypeInvoice, r.Purchase.DocType)
	assert.Equal(t, "EFR1", r.Purchase.DocNumber)
	assert.Equal(t, "1000.00", r.Purchase.Amount)
	assert.Equal(t, taxclass.NewRateSet(20), r.PurchaseVATRates)
	assert.Equal(t, []string{KindInvoice}, r.DocKinds)
	assert.Equal(t, DocumentRef{ID: "id-EFR1", Direction: services.Incoming}, r.PurchaseDoc)
	assert.Equal(t, taxclass.Unclassified, r.Label)
}

func TestMergePurchaseIdempotent(t *testing.T) {
	l := New()
	e := purchase(idA, "EFR1", 20)
	l.MergePurchase(e)
	first, _ := l.Record(idA)

	e.Amount = "9999.00"
	e.VATRate = rate(8)
	assert.Equal(t, Duplicate, l.MergePurchase(e))
	second, _ := l.Record(idA)

	assert.Equal(t, first.PurchaseVATRates, second.PurchaseVATRates)
	assert.Equal(t, first.Purchase, second.Purchase)
	assert.Len(t, second.Annotations, len(first.Annotations)+1)
	assert.Equal(t, "duplicate purchase: EFR1", second.Annotations[len(second.Annotations)-1])

	l.MergePurchase(e)
	third, _ := l.Record(idA)
	assert.Len(t, third.Annotations, len(first.Annotations)+2)
}

func TestMergePurchaseFirstWriteWins(t *testing.T) {
	l := New()
	first := purchase(idA, "EFR1", 20)
	first.Brand = "Unknown"
	first.Party = ""
	l.MergePurchase(first)

	second := purchase(idA, "EFR2", 1)
	second.Model = "other model"
	second.Party = "Second Supplier"
	l.MergePurchase(second)

	r, _ := l.Record(idA)
	assert.Equal(t, "APPLE", r.Purchase.Brand, "unknown brand is replaced")
	assert.Equal(t, "APPLE IPHONE 11", r.Purchase.Model)
	assert.Equal(t, "EFR1", r.Purchase.DocNumber)
	assert.Equal(t, "Second Supplier", r.Purchase.Party, "blank field is filled later")
	assert.Equal(t, taxclass.NewRateSet(1, 20), r.PurchaseVATRates)
}

func TestMergeSale(t *testing.T) {
	l := New()
	l.MergePurchase(purchase(idA, "EFR1", 20))
	assert.Equal(t, Merged, l.MergeSale(sale(idA, "EAR1", 1)))

	r, _ := l.Record(idA)
	assert.Equal(t, StatusSold, r.Status)
	assert.Equal(t, "EAR1", r.Sale.DocNumber)
	assert.Equal(t, taxclass.Renewed, r.Label)
	assert.Equal(t, []string{taxclass.ReasonSaleVAT1, taxclass.ReasonPurchase20Sale1}, r.Reasons)
	assert.Equal(t, DocumentRef{ID: "id-EAR1", Direction: services.EArchive}, r.SaleDoc)

	assert.Equal(t, Duplicate, l.MergeSale(sale(idA, "EAR1", 1)))

	other := sale(idA, "EAR2", 20)
	other.Buyer = "Someone Else"
	assert.Equal(t, AdditionalSale, l.MergeSale(other))
	r, _ = l.Record(idA)
	assert.Equal(t, "Ayşe Yılmaz", r.Sale.Buyer)
	assert.Equal(t, "EAR1", r.Sale.DocNumber)
	assert.Contains(t, r.Annotations, "multiple sales: EAR2 (kept EAR1)")
	assert.Equal(t, taxclass.NewRateSet(1, 20), r.SaleVATRates)
}

func TestSaleBeforePurchase(t *testing.T) {
	l := New()
	l.MergeSale(sale(idA, "EAR1", 20))
	l.MergePurchase(purchase(idA, "EFR1", 20))

	r, _ := l.Record(idA)
	assert.Equal(t, StatusSold, r.Status)
}

func TestRejectsInvalidIdentifier(t *testing.T) {
	l := New()
	assert.Equal(t, Rejected, l.MergePurchase(purchase("490154203237517", "EFR1", 20)))
	assert.Equal(t, Rejected, l.MergeSale(sale("12345", "EAR1", 1)))
	assert.Equal(t, Rejected, l.MergeExternalRow(models.LedgerRow{Identifier: "abc"}))
	assert.Equal(t, Rejected, l.RecordNotFound(""))
	assert.Equal(t, 0, l.Len())
}

func TestMonotonicity(t *testing.T) {
	l := New()
	var prev Record
	steps := []func(){
		func() { l.MergeExternalRow(models.LedgerRow{Identifier: idA, Model: "2. el iPhone", PurchaseVAT: "20", Source: "s1"}) },
		func() { l.MergePurchase(purchase(idA, "EFR1", 8)) },
		func() { l.MergeSale(sale(idA, "EAR1", 1)) },
		func() { l.MergePurchase(PurchaseEntry{Identifier: idA, DocumentKey: "EFR2", Hints: taxclass.Hints{Refurbished: true}}) },
		func() { l.MergeSale(sale(idA, "EAR2", 20)) },
		func() { l.RecordNotFound(idA) },
	}
	for i, step := range steps {
		step()
		cur, ok := l.Record(idA)
		require.True(t, ok)
		if i > 0 {
			assert.True(t, cur.PurchaseVATRates.Contains(prev.PurchaseVATRates), "step %d purchase rates", i)
			assert.True(t, cur.SaleVATRates.Contains(prev.SaleVATRates), "step %d sale rates", i)
			assert.True(t, cur.Hints.Covers(prev.Hints), "step %d hints", i)
		}
		prev = cur
	}
	assert.Equal(t, taxclass.Hints{Refurbished: true, SecondHand: true, ExternalLedger: true}, prev.Hints)
}

func TestRecordNotFound(t *testing.T) {
	l := New()
	assert.Equal(t, 2, l.Track(idA, idB, "bad", idA))
	assert.Equal(t, []string{idA, idB}, l.Targets())

	assert.Equal(t, Merged, l.RecordNotFound(idA))
	r, _ := l.Record(idA)
	assert.Equal(t, StatusNotFound, r.Status)
	assert.Equal(t, originNotFound, r.Row().Origin)

	l.MergeSale(sale(idB, "EAR1", 20))
	l.RecordNotFound(idB)
	r, _ = l.Record(idB)
	assert.Equal(t, StatusPurchaseMissing, r.Status)

	l.MergePurchase(purchase(idC, "EFR1", 20))
	assert.Equal(t, Unchanged, l.RecordNotFound(idC))
	r, _ = l.Record(idC)
	assert.Equal(t, StatusSellable, r.Status)
}

func TestExternalUpgradesNotFound(t *testing.T) {
	l := New()
	l.Track(idA)
	l.RecordNotFound(idA)

	assert.Equal(t, Merged, l.MergeExternalRow(models.LedgerRow{
		Identifier:      idA,
		PurchaseDocType: DocTypeExpenseVoucher,
		PurchaseDate:    "01.03.2024",
		PurchaseAmount:  "750.00",
		Model:           "Samsung Galaxy A52",
		Notes:           "Branch: Kadıköy",
		Source:          "vouchers.xlsx",
	}))

	r, _ := l.Record(idA)
	assert.Equal(t, StatusSellable, r.Status)
	assert.Equal(t, "LEDGER", r.Origin.String())
	assert.Equal(t, "SAMSUNG", r.Purchase.Brand)
	assert.Equal(t, []string{KindExpenseVoucher}, r.DocKinds)
	assert.True(t, r.Hints.ExternalLedger)
	assert.Contains(t, r.Annotations, "Branch: Kadıköy")

	l.MergePurchase(purchase(idA, "EFR1", 20))
	r, _ = l.Record(idA)
	assert.Equal(t, "XML+LEDGER", r.Origin.String())
	assert.Equal(t, "Expense voucher + Invoice", r.Row().DocTypeSummary)

	assert.Equal(t, Duplicate, l.MergeExternalRow(models.LedgerRow{Identifier: idA, Source: "vouchers.xlsx"}))
	assert.Equal(t, Merged, l.MergeExternalRow(models.LedgerRow{Identifier: idA, Source: "other.xlsx"}))
}

func TestVoucherSaleReason(t *testing.T) {
	l := New()
	l.MergeExternalRow(models.LedgerRow{Identifier: idA, Source: "gp"})
	l.MergeSale(sale(idA, "EAR1", 1))
	r, _ := l.Record(idA)
	assert.Equal(t, []string{taxclass.ReasonSaleVAT1, taxclass.ReasonVoucherSale1}, r.Reasons)
}

func TestExportRows(t *testing.T) {
	l := New()
	l.Track(idB)
	l.MergePurchase(purchase(idA, "EFR1", 20))
	l.MergeSale(sale(idA, "EAR1", 1))
	l.RecordNotFound(idB)
	l.AddUnidentified(models.LedgerRow{Origin: "XML", PurchaseDocNo: "EFR9", Model: "refurbished, no IMEI"})

	rows := l.ExportRows()
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Len(t, row, len(Headers))
		assert.Len(t, row, models.LedgerRowWidth)
	}

	assert.Equal(t, idB, rows[0][0], "tracked identifiers keep request order")
	assert.Equal(t, string(StatusNotFound), rows[0][19])

	a := rows[1]
	assert.Equal(t, idA, a[0])
	assert.Equal(t, "XML", a[1])
	assert.Equal(t, "EAR1", a[14])
	assert.Equal(t, string(StatusSold), a[19])
	assert.Equal(t, "20", a[20])
	assert.Equal(t, "1", a[21])
	assert.Equal(t, "RENEWED", a[22])
	assert.Equal(t, "sale VAT=1; purchase VAT 20 → sale VAT 1", a[23])

	assert.Equal(t, "", rows[2][0])
	assert.Equal(t, "EFR9", rows[2][5])
}

func TestExportImportRoundTrip(t *testing.T) {
	src := New()
	src.MergePurchase(purchase(idA, "EFR1", 20))
	src.MergeSale(sale(idA, "EAR1", 1))

	src.MergePurchase(PurchaseEntry{Identifier: idB, DocumentKey: "EFR2", Model: "iPhone", VATRate: rate(20),
		Hints: taxclass.Hints{SecondHand: true}})
	src.MergeSale(sale(idB, "EAR2", 20))

	src.MergePurchase(PurchaseEntry{Identifier: idC, DocumentKey: "EFR3", Model: "Galaxy", VATRate: rate(20),
		Hints: taxclass.Hints{Refurbished: true}})
	src.MergeSale(sale(idC, "EAR3", 20))

	extra := "359881030314355"
	src.Track(extra)
	src.RecordNotFound(extra)

	dst := New()
	var rows []models.LedgerRow
	for _, values := range src.ExportRows() {
		row := models.LedgerRowFromValues(values)
		row.Source = "report.xlsx"
		rows = append(rows, row)
	}
	assert.Equal(t, 4, dst.Import(rows, false))

	for _, want := range src.Records() {
		got, ok := dst.Record(want.Identifier)
		require.True(t, ok, want.Identifier)
		assert.Equal(t, want.Label, got.Label, want.Identifier)
		assert.True(t, got.PurchaseVATRates.Contains(want.PurchaseVATRates))
		assert.True(t, got.SaleVATRates.Contains(want.SaleVATRates))
	}
}

func TestImportKeepsStatusWithoutPurchase(t *testing.T) {
	src := New()
	src.Track(idA, idB)
	src.MergeSale(sale(idB, "EAR9", 20))
	src.RecordNotFound(idA)
	src.RecordNotFound(idB)

	var rows []models.LedgerRow
	for _, values := range src.ExportRows() {
		row := models.LedgerRowFromValues(values)
		row.Source = "report.xlsx"
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	assert.Equal(t, "NOT_FOUND", rows[0].Origin)

	dst := New()
	dst.Track(idA, idB)
	assert.Equal(t, 2, dst.Import(rows, false))

	a, _ := dst.Record(idA)
	assert.Equal(t, StatusNotFound, a.Status)
	assert.Empty(t, a.DocKinds)
	assert.Equal(t, "NOT_FOUND", a.Row().Origin)
	assert.False(t, a.Hints.ExternalLedger)

	b, _ := dst.Record(idB)
	assert.Equal(t, StatusPurchaseMissing, b.Status)
	assert.Equal(t, "XML", b.Row().Origin)

	// A later scan still reports the target as missing from purchases.
	assert.Equal(t, Merged, dst.RecordNotFound(idA))
	a, _ = dst.Record(idA)
	assert.Equal(t, StatusNotFound, a.Status)

	// Purchase evidence from a voucher row still upgrades it.
	dst.MergeExternalRow(models.LedgerRow{
		Identifier:      idA,
		PurchaseDocType: DocTypeExpenseVoucher,
		PurchaseDate:    "02.05.2024",
		Source:          "gp.xlsx",
	})
	a, _ = dst.Record(idA)
	assert.Equal(t, StatusSellable, a.Status)
	assert.Equal(t, "LEDGER", a.Origin.String())
}

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want Origin
	}{
		{"XML", OriginInvoice},
		{"LEDGER", OriginExternal},
		{"xml + ledger", OriginInvoice | OriginExternal},
		{"NOT_FOUND", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrigin(tt.in))
		})
	}
}

func TestBrandReplacesUnknown(t *testing.T) {
	l := New()
	first := purchase(idA, "EFR1", 20)
	first.Brand = "Unknown"
	l.MergePurchase(first)

	second := purchase(idA, "EFR2", 20)
	second.Brand = "APPLE"
	l.MergePurchase(second)

	third := purchase(idA, "EFR3", 20)
	third.Brand = "SAMSUNG"
	l.MergePurchase(third)

	r, _ := l.Record(idA)
	assert.Equal(t, "APPLE", r.Purchase.Brand)
}

func TestDuplicateLedgerRowLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	l := New()
	row := models.LedgerRow{Identifier: idA, PurchaseDocNo: "GP-1", Source: "gp.xlsx"}
	assert.Equal(t, Merged, l.MergeExternalRow(row))
	assert.Equal(t, Duplicate, l.MergeExternalRow(row))

	assert.Contains(t, buf.String(), "Duplicate ledger row merge")
	assert.Contains(t, buf.String(), `"document":"gp.xlsx|GP-1"`)
}
