package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"imeiledger/internal/reconciliation"
	"imeiledger/internal/taxclass"
	"imeiledger/pkg/services"
)

const (
	idA = "490154203237518"
	idB = "352099001761481"
	idC = "356938035643809"
)

type line struct {
	name  string
	price string
	rate  int
}

// invoiceXML renders a minimal UBL-TR invoice.
func invoiceXML(number, supplier, buyer, payable string, notes []string, lines ...line) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
 xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
 xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">`)
	fmt.Fprintf(&b, "<cbc:ID>%s</cbc:ID><cbc:IssueDate>2024-03-01</cbc:IssueDate>", number)
	for _, n := range notes {
		fmt.Fprintf(&b, "<cbc:Note>%s</cbc:Note>", n)
	}
	fmt.Fprintf(&b, `<cac:AccountingSupplierParty><cac:Party>
<cac:PartyIdentification><cbc:ID schemeID="VKN">1234567890</cbc:ID></cac:PartyIdentification>
<cac:PartyName><cbc:Name>%s</cbc:Name></cac:PartyName></cac:Party></cac:AccountingSupplierParty>`, supplier)
	fmt.Fprintf(&b, `<cac:AccountingCustomerParty><cac:Party>
<cac:PartyIdentification><cbc:ID>12345678901</cbc:ID></cac:PartyIdentification>
<cac:PartyName><cbc:Name>%s</cbc:Name></cac:PartyName></cac:Party></cac:AccountingCustomerParty>`, buyer)
	b.WriteString(`<cac:TaxTotal><cbc:TaxAmount currencyID="TRY">10.00</cbc:TaxAmount></cac:TaxTotal>`)
	fmt.Fprintf(&b, `<cac:LegalMonetaryTotal><cbc:PayableAmount currencyID="TRY">%s</cbc:PayableAmount></cac:LegalMonetaryTotal>`, payable)
	for _, l := range lines {
		b.WriteString("<cac:InvoiceLine>")
		fmt.Fprintf(&b, `<cac:TaxTotal><cac:TaxSubtotal><cbc:Percent>%d</cbc:Percent></cac:TaxSubtotal></cac:TaxTotal>`, l.rate)
		fmt.Fprintf(&b, "<cac:Item><cbc:Name>%s</cbc:Name></cac:Item>", l.name)
		if l.price != "" {
			fmt.Fprintf(&b, `<cac:Price><cbc:PriceAmount currencyID="TRY">%s</cbc:PriceAmount></cac:Price>`, l.price)
		}
		b.WriteString("</cac:InvoiceLine>")
	}
	b.WriteString("</Invoice>")
	return []byte(b.String())
}

type docKey struct {
	dir services.Direction
	id  string
}

type fakeSource struct {
	mu        sync.Mutex
	noToken   bool
	lists     map[services.Direction][]services.InvoiceMeta
	docs      map[docKey][]byte
	failing   map[string]bool
	urls      map[string][]byte
	onFetch   func()
	block     chan struct{}
	fetched   []string
	listCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		lists:   make(map[services.Direction][]services.InvoiceMeta),
		docs:    make(map[docKey][]byte),
		failing: make(map[string]bool),
		urls:    make(map[string][]byte),
	}
}

func (f *fakeSource) add(dir services.Direction, id, number string, data []byte) {
	f.lists[dir] = append(f.lists[dir], services.InvoiceMeta{ID: id, DocumentNumber: number})
	f.docs[docKey{dir, id}] = data
}

func (f *fakeSource) HasToken() bool { return !f.noToken }

func (f *fakeSource) ListInvoices(ctx context.Context, dir services.Direction, r services.DateRange) ([]services.InvoiceMeta, error) {
	f.mu.Lock()
	f.listCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.lists[dir], nil
}

func (f *fakeSource) FetchDocument(ctx context.Context, dir services.Direction, id string, format services.Format) ([]byte, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.failing[id] {
		return nil, errors.New("document unavailable")
	}
	data, ok := f.docs[docKey{dir, id}]
	if !ok {
		return nil, errors.New("not found")
	}
	if format == services.FormatPDF {
		return []byte("%PDF-" + id), nil
	}
	return data, nil
}

func (f *fakeSource) FetchURL(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.urls[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestPreconditions(t *testing.T) {
	src := newFakeSource()
	src.noToken = true
	_, err := New(src, reconciliation.New(), Options{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)

	err = New(nil, reconciliation.New(), Options{}).Start(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = New(newFakeSource(), reconciliation.New(), Options{RequireTargets: true}).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = New(newFakeSource(), reconciliation.New(), Options{}).Wait()
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.Empty(t, src.fetched, "no document is requested when a precondition fails")
}

func TestRunPurchasesAndSales(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR2024000000001", invoiceXML("EFR2024000000001", "Toptan GSM Ltd", "Biz", "2400.00", nil,
		line{name: "APPLE IPHONE 11 " + idA, price: "1000.00", rate: 20},
		line{name: "SAMSUNG A52 " + idB, price: "900.00", rate: 20},
	))
	src.add(services.EArchive, "s1", "EAR2024000000001", invoiceXML("EAR2024000000001", "Biz", "Ali Veli", "1250.00", nil,
		line{name: "Yenilenmiş iPhone 11 " + idA, price: "1250.00", rate: 1},
	))

	ledger := reconciliation.New()
	ledger.Track(idA, idC)

	sum, err := New(src, ledger, Options{ScanSales: true}).Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.ScanID)
	assert.Equal(t, 1, sum.PurchaseDocuments)
	assert.Equal(t, 1, sum.SaleDocuments)
	assert.Equal(t, 1, sum.PurchaseMerges)
	assert.Equal(t, 1, sum.SaleMerges)
	assert.Equal(t, 1, sum.NotFound)
	assert.False(t, sum.Cancelled)

	a, ok := ledger.Record(idA)
	require.True(t, ok)
	assert.Equal(t, "1000.00", a.Purchase.Amount)
	assert.Equal(t, "APPLE", a.Purchase.Brand)
	assert.Equal(t, "Toptan GSM Ltd", a.Purchase.Party)
	assert.Equal(t, "Ali Veli", a.Sale.Buyer)
	assert.Equal(t, reconciliation.StatusSold, a.Status)
	assert.Equal(t, taxclass.Renewed, a.Label)
	assert.Contains(t, a.Reasons, taxclass.ReasonSaleVAT1)
	assert.Contains(t, a.Reasons, taxclass.ReasonPurchase20Sale1)
	assert.Equal(t, "p1", a.PurchaseDoc.ID)
	assert.Equal(t, services.EArchive, a.SaleDoc.Direction)

	assert.False(t, ledger.Has(idB), "identifiers outside the targets are left out")

	c, ok := ledger.Record(idC)
	require.True(t, ok)
	assert.Equal(t, reconciliation.StatusNotFound, c.Status)
}

func TestRunIncludeOutside(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR2024000000001", invoiceXML("EFR2024000000001", "Toptan GSM Ltd", "Biz", "2400.00", nil,
		line{name: "APPLE IPHONE 11 " + idA, price: "1000.00", rate: 20},
		line{name: "SAMSUNG A52 " + idB, price: "900.00", rate: 20},
	))

	ledger := reconciliation.New()
	ledger.Track(idA)

	sum, err := New(src, ledger, Options{IncludeOutside: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PurchaseMerges)

	b, ok := ledger.Record(idB)
	require.True(t, ok)
	assert.Equal(t, "900.00", b.Purchase.Amount)
	assert.Equal(t, "SAMSUNG", b.Purchase.Brand)
	assert.Equal(t, reconciliation.StatusSellable, b.Status)
	assert.Equal(t, 1, src.listCalls, "sales are not listed unless enabled")
}

func TestRunSideRowsAndWhitelist(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR1", invoiceXML("EFR1", "Yenileme Merkezi", "Biz", "500.00", []string{"Yenilenmiş ürün teslimi"},
		line{name: "Refurbished telefon", price: "500.00", rate: 20},
	))
	src.add(services.Incoming, "p2", "EFR2", invoiceXML("EFR2", "Servis A.Ş.", "Biz", "300.00", []string{"CEP TELEFONU YENİLEME HİZMETİ"}))
	src.add(services.Incoming, "p3", "EFR3", invoiceXML("EFR3", "Yurtiçi Kargo", "Biz", "40.00", []string{"yenilenmiş kutu gönderimi"}))

	ledger := reconciliation.New()
	opts := Options{Whitelist: []*regexp.Regexp{regexp.MustCompile(`(?i)KARGO`)}}
	sum, err := New(src, ledger, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.SideRows)
	assert.Equal(t, 0, ledger.Len())

	rows := ledger.Unidentified()
	require.Len(t, rows, 2)

	assert.Equal(t, "EFR1", rows[0].PurchaseDocNo)
	assert.Equal(t, noteRefurbishedNoID, rows[0].Notes)
	assert.Equal(t, string(reconciliation.StatusSellable), rows[0].Status)
	assert.Equal(t, "500.00", rows[0].PurchaseAmount)
	assert.Equal(t, "XML", rows[0].Origin)

	assert.Equal(t, "EFR2", rows[1].PurchaseDocNo)
	assert.Equal(t, string(reconciliation.StatusPurchaseMissing), rows[1].Status)
	assert.Equal(t, kindService, rows[1].DocTypeSummary)
	assert.Equal(t, reasonRenewal, rows[1].Reasons)
}

func TestRunContinuesAfterFailures(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR1", nil)
	src.failing["p1"] = true
	src.add(services.Incoming, "p2", "EFR2", []byte("<Invoice><broken"))
	src.add(services.Incoming, "p3", "EFR3", invoiceXML("EFR3", "Toptan", "Biz", "100.00", nil,
		line{name: "Redmi Note 12 " + idA, rate: 20},
	))

	sum, err := New(src, reconciliation.New(), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failures)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.PurchaseMerges)
	assert.Equal(t, []string{"p1", "p2", "p3"}, src.fetched)
}

func TestRunAmountFallsBackToPayable(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR1", invoiceXML("EFR1", "Toptan", "Biz", "750.00", []string{"IMEI " + idA},
		line{name: "Telefon", rate: 20},
	))

	ledger := reconciliation.New()
	_, err := New(src, ledger, Options{}).Run(context.Background())
	require.NoError(t, err)

	r, ok := ledger.Record(idA)
	require.True(t, ok)
	assert.Equal(t, "750.00", r.Purchase.Amount)
	assert.True(t, r.PurchaseVATRates.Has(20), "invoice rate applies when no line mentions the identifier")
}

func TestRunSalesFirstWithDocumentFilter(t *testing.T) {
	src := newFakeSource()
	src.add(services.EArchive, "s1", "EAR2024000000001", invoiceXML("EAR2024000000001", "Biz", "Ali", "100.00", nil,
		line{name: "iPhone " + idA, rate: 20},
	))
	src.add(services.EArchive, "s2", "EAR2024000000002", invoiceXML("EAR2024000000002", "Biz", "Veli", "100.00", nil,
		line{name: "Galaxy " + idB, rate: 20},
	))
	src.add(services.Incoming, "p1", "EFR2024000000009", invoiceXML("EFR2024000000009", "Toptan", "Biz", "90.00", nil,
		line{name: "iPhone " + idA, price: "80.00", rate: 20},
		line{name: "Galaxy " + idB, price: "70.00", rate: 20},
	))

	ledger := reconciliation.New()
	opts := Options{ScanSales: true, DocumentFilter: []string{"ear2024000000001"}}
	sum, err := New(src, ledger, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.SaleMerges)
	assert.Equal(t, 1, sum.PurchaseMerges)

	assert.Equal(t, []string{idA}, ledger.Targets())
	assert.False(t, ledger.Has(idB))
	assert.NotContains(t, src.fetched, "s2", "filtered documents are not downloaded")

	a, _ := ledger.Record(idA)
	assert.Equal(t, "80.00", a.Purchase.Amount)
	assert.Equal(t, reconciliation.StatusSold, a.Status)
}

func TestBuyerAndSupplierFilters(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR1", invoiceXML("EFR1", "Toptan GSM", "Biz", "90.00", nil, line{name: "iPhone " + idA, rate: 20}))
	src.add(services.Incoming, "p2", "EFR2", invoiceXML("EFR2", "Başka Firma", "Biz", "90.00", nil, line{name: "Galaxy " + idB, rate: 20}))
	src.add(services.Outgoing, "s1", "EFR3", invoiceXML("EFR3", "Biz", "Ayşe Yılmaz", "90.00", nil, line{name: "iPhone " + idA, rate: 1}))
	src.add(services.Outgoing, "s2", "EFR4", invoiceXML("EFR4", "Biz", "Mehmet", "90.00", nil, line{name: "Galaxy " + idB, rate: 1}))

	ledger := reconciliation.New()
	opts := Options{
		ScanSales: true,
		Supplier:  PartyFilter{Name: "toptan"},
		Buyer:     PartyFilter{Name: "AYSE"},
	}
	_, err := New(src, ledger, opts).Run(context.Background())
	require.NoError(t, err)

	a, ok := ledger.Record(idA)
	require.True(t, ok)
	assert.Equal(t, "Ayşe Yılmaz", a.Sale.Buyer)
	assert.False(t, ledger.Has(idB))
}

func TestStopCancelsBetweenDocuments(t *testing.T) {
	src := newFakeSource()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("p%d", i)
		src.add(services.Incoming, id, id, invoiceXML(id, "Toptan", "Biz", "10.00", nil, line{name: "iPhone " + idA, rate: 20}))
	}

	ledger := reconciliation.New()
	ledger.Track(idA, idC)
	sc := New(src, ledger, Options{})
	src.onFetch = sc.Stop

	sum, err := sc.Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Cancelled)
	assert.Len(t, src.fetched, 1, "no document is requested after Stop")

	c, _ := ledger.Record(idC)
	assert.Equal(t, reconciliation.StatusUnknown, c.Status, "not-found marking is skipped after cancellation")
}

func TestStartWhileRunning(t *testing.T) {
	src := newFakeSource()
	src.block = make(chan struct{})

	sc := New(src, reconciliation.New(), Options{})
	require.NoError(t, sc.Start(context.Background()))
	assert.ErrorIs(t, sc.Start(context.Background()), ErrAlreadyRunning)

	sc.Stop()
	_, err := sc.Wait()
	assert.ErrorIs(t, err, context.Canceled)

	src.mu.Lock()
	src.block = nil
	src.mu.Unlock()
	_, err = sc.Run(context.Background())
	assert.NoError(t, err, "a finished scanner can run again")
}

func voucherWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"IMEI", "Tarih", "Tutar", "Açıklama"},
		{idA, "05.03.2024", "1.500,00", "iPhone 11 2. el"},
		{idB, "06.03.2024", "900", "Galaxy"},
	}
	for i, r := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := r
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type fakeRanges struct {
	values [][]interface{}
}

func (f fakeRanges) ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	return f.values, nil
}

func TestRunVoucherSources(t *testing.T) {
	src := newFakeSource()
	src.urls["https://example.com/gp.xlsx"] = voucherWorkbook(t)

	ledger := reconciliation.New()
	ledger.Track(idA, idC)

	opts := Options{
		VoucherURLs: []string{"https://example.com/gp.xlsx", "https://example.com/missing.xlsx"},
		SheetRanges: []string{"GP!A:Z"},
	}
	ranges := fakeRanges{values: [][]interface{}{{"imei"}, {idC}}}
	sum, err := New(src, ledger, opts, WithRangeReader(ranges)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ExternalMerges)
	assert.Equal(t, 1, sum.Failures)

	a, ok := ledger.Record(idA)
	require.True(t, ok)
	assert.Equal(t, reconciliation.OriginExternal, a.Origin)
	assert.Equal(t, "1500.00", a.Purchase.Amount)
	assert.True(t, a.Hints.ExternalLedger)
	assert.True(t, a.Hints.SecondHand)
	assert.Equal(t, taxclass.SecondHand, a.Label)
	assert.Equal(t, reconciliation.StatusSellable, a.Status, "voucher rows upgrade a not-found target")
	assert.Contains(t, a.DocKinds, reconciliation.KindExpenseVoucher)

	c, _ := ledger.Record(idC)
	assert.Equal(t, reconciliation.StatusSellable, c.Status)
	assert.False(t, ledger.Has(idB))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"EFR2024000000001", "EFR2024000000001"},
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"  many   spaces\there ", "many spaces here"},
		{"", defaultFilename},
		{"   ", defaultFilename},
		{strings.Repeat("ş", 200), strings.Repeat("ş", maxFilenameLength)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestDownloaderRecords(t *testing.T) {
	src := newFakeSource()
	src.add(services.Incoming, "p1", "EFR1", invoiceXML("EFR1", "Toptan", "Biz", "10.00", nil,
		line{name: "iPhone " + idA, rate: 20},
		line{name: "Galaxy " + idB, rate: 20},
	))
	src.add(services.Outgoing, "s1", "EFR/2", invoiceXML("EFR/2", "Biz", "Ali", "10.00", nil, line{name: "iPhone " + idA, rate: 20}))

	ledger := reconciliation.New()
	_, err := New(src, ledger, Options{ScanSales: true}).Run(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "docs")
	src.fetched = nil
	saved, err := NewDownloader(src, dir, services.FormatXML, services.FormatPDF).Records(context.Background(), ledger.Records())
	require.NoError(t, err)
	assert.Equal(t, 4, saved)
	assert.Len(t, src.fetched, 4, "a document shared by two identifiers is fetched once per format")

	for _, name := range []string{"EFR1_PURCHASE.xml", "EFR1_PURCHASE.pdf", "EFR_2_SALE.xml", "EFR_2_SALE.pdf"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestDownloaderDocuments(t *testing.T) {
	src := newFakeSource()
	src.add(services.EArchive, "abc", "EAR1", []byte("<Invoice/>"))

	dir := t.TempDir()
	saved, err := NewDownloader(src, dir).Documents(context.Background(), services.EArchive, []string{"abc", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	data, err := os.ReadFile(filepath.Join(dir, "abc_SALE.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<Invoice/>", string(data))
}
