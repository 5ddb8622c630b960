package voucher

import (
	"strings"

	"imeiledger/internal/imei"
	"imeiledger/internal/reconciliation"
	"imeiledger/internal/textmatch"
	"imeiledger/pkg/models"
)

const (
	templateScanRows   = 10
	templateMinHits    = 5
	identifierColumn   = 0
	originExternalText = "LEDGER"
)

// templateHeaders lists the Turkish voucher template headers per report
// column, in normalized form.
var templateHeaders = map[int][]string{
	0:  {"imei", "imei/seri", "seri no", "serino"},
	1:  {"bulunma"},
	2:  {"tck/vkn", "tckn", "vkn", "tc kimlik"},
	3:  {"belge turu"},
	4:  {"belge tarihi"},
	5:  {"belge no"},
	6:  {"alinan kisi"},
	7:  {"borc tutar"},
	8:  {"marka"},
	9:  {"model", "aciklama", "urun"},
	10: {"satis tarihi"},
	11: {"alici adi soyadi"},
	12: {"satis bedeli"},
	13: {"kdv tutari"},
	14: {"satis belgesinin numarasi"},
	15: {"alici kimlik turu"},
	16: {"alici kimlik no"},
	17: {"sutun1", "sube", "magaza"},
	18: {"alis belgeleri turu"},
	19: {"durumu"},
	20: {"alis kdv"},
	21: {"satis kdv"},
	22: {"sinif"},
	23: {"gerekce"},
}

// headerAliases maps normalized header text to a report column index. It
// accepts the exported headers as well as the voucher template.
var headerAliases = buildAliases()

func buildAliases() map[string]int {
	m := make(map[string]int)
	for i, h := range reconciliation.Headers {
		m[textmatch.HeaderKey(h)] = i
	}
	for col, names := range templateHeaders {
		for _, n := range names {
			m[n] = col
		}
	}
	return m
}

// findTemplateHeader returns the header row index and the mapping from
// grid column to report column.
func findTemplateHeader(grid [][]string) (int, map[int]int, bool) {
	for r := 0; r < len(grid) && r < templateScanRows; r++ {
		cols := make(map[int]int)
		used := make(map[int]bool)
		for c, raw := range grid[r] {
			canon, ok := headerAliases[textmatch.HeaderKey(raw)]
			if !ok || used[canon] {
				continue
			}
			cols[c] = canon
			used[canon] = true
		}
		if len(cols) >= templateMinHits && used[identifierColumn] {
			return r, cols, true
		}
	}
	return 0, nil, false
}

// ParseTemplate reads rows of a recognized template. Rows without any
// valid identifier are skipped.
func ParseTemplate(grid [][]string, source string) ([]models.LedgerRow, error) {
	head, cols, ok := findTemplateHeader(grid)
	if !ok {
		return nil, ErrNoHeader
	}

	var out []models.LedgerRow
	for _, raw := range grid[head+1:] {
		if blank(raw) {
			continue
		}
		vals := make([]string, models.LedgerRowWidth)
		for c, canon := range cols {
			vals[canon] = cell(raw, c)
		}

		id := strings.ReplaceAll(vals[identifierColumn], " ", "")
		if !imei.Validate(id) {
			id = imei.First(strings.Join(raw, " "))
		}
		if id == "" {
			continue
		}
		vals[identifierColumn] = id

		row := models.LedgerRowFromValues(vals)
		row.Source = source
		normalizeTemplateRow(&row)
		out = append(out, row)
	}
	return out, nil
}

func normalizeTemplateRow(row *models.LedgerRow) {
	row.PurchaseDocType = normalizeDocType(row.PurchaseDocType)
	row.DocTypeSummary = normalizeKinds(row.DocTypeSummary, row.PurchaseDocType)
	if !textmatch.KnownBrand(row.Brand) && row.Model != "" {
		row.Brand = textmatch.Brand(row.Model)
	}
	switch st := reconciliation.ParseStatus(row.Status); st {
	case reconciliation.StatusUnknown, reconciliation.StatusSellable:
		if row.HasSale() {
			row.Status = string(reconciliation.StatusSold)
		} else {
			row.Status = string(reconciliation.StatusSellable)
		}
	default:
		row.Status = string(st)
	}
	if row.Origin == "" {
		row.Origin = originExternalText
	}
	row.PurchaseAmount = NormalizeAmount(row.PurchaseAmount)
	row.SaleAmount = NormalizeAmount(row.SaleAmount)
	row.SaleTax = NormalizeAmount(row.SaleTax)
}

func normalizeDocType(s string) string {
	switch up := textmatch.Upper(s); {
	case up == "":
		return ""
	case up == "GMA", strings.Contains(up, "GIDER PUSULASI"), strings.Contains(up, "EXPENSE"):
		return reconciliation.DocTypeExpenseVoucher
	case strings.Contains(up, "FATURA"), strings.Contains(up, "INVOICE"):
		return reconciliation.DocTypeInvoice
	default:
		return strings.TrimSpace(s)
	}
}

// normalizeKinds maps a "Fatura + Gider Pusulası" style summary onto the
// ledger's kind names.
func normalizeKinds(summary, docType string) string {
	var kinds []string
	add := func(k string) {
		for _, x := range kinds {
			if x == k {
				return
			}
		}
		kinds = append(kinds, k)
	}
	for _, part := range strings.Split(summary, "+") {
		part = strings.TrimSpace(part)
		up := textmatch.Upper(part)
		switch {
		case part == "":
		case strings.Contains(up, "GIDER") || strings.Contains(up, "VOUCHER"):
			add(reconciliation.KindExpenseVoucher)
		case strings.Contains(up, "FATURA") || strings.Contains(up, "INVOICE"):
			add(reconciliation.KindInvoice)
		default:
			add(part)
		}
	}
	if len(kinds) == 0 && docType == reconciliation.DocTypeExpenseVoucher {
		add(reconciliation.KindExpenseVoucher)
	}
	return strings.Join(kinds, " + ")
}
