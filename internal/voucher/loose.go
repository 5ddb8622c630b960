package voucher

import (
	"strings"

	"imeiledger/internal/imei"
	"imeiledger/internal/reconciliation"
	"imeiledger/internal/textmatch"
	"imeiledger/pkg/models"
)

const looseScanRows = 12

// looseKeywords are substrings searched in normalized header cells.
var looseKeywords = map[string][]string{
	"imei":     {"imei", "seri", "serial", "serino", "seri no", "seri-no"},
	"date":     {"tarih", "alis tarihi", "islem tarihi", "gp tarihi"},
	"amount":   {"tutar", "bedel", "fiyat", "odenen", "ucret"},
	"party":    {"adi", "ad soyad", "adsoyad", "satici", "musteri", "alan", "veren"},
	"branch":   {"sube", "magaza"},
	"describe": {"aciklama", "not", "urun", "cihaz", "model"},
}

type looseColumns struct {
	imei, date, amount, party, branch, describe int
}

func findColumn(header []string, keys []string) int {
	for i, h := range header {
		hh := textmatch.Lower(h)
		for _, k := range keys {
			if strings.Contains(hh, k) {
				return i
			}
		}
	}
	return -1
}

// scanLooseHeader finds the first row with an identifier-like column. Without
// one, the first row is treated as a header and column A holds identifiers.
func scanLooseHeader(grid [][]string) (int, looseColumns) {
	for r := 0; r < len(grid) && r < looseScanRows; r++ {
		row := grid[r]
		if idx := findColumn(row, looseKeywords["imei"]); idx >= 0 {
			return r, looseColumns{
				imei:     idx,
				date:     findColumn(row, looseKeywords["date"]),
				amount:   findColumn(row, looseKeywords["amount"]),
				party:    findColumn(row, looseKeywords["party"]),
				branch:   findColumn(row, looseKeywords["branch"]),
				describe: findColumn(row, looseKeywords["describe"]),
			}
		}
	}
	return 0, looseColumns{imei: 0, date: -1, amount: -1, party: -1, branch: -1, describe: -1}
}

// ParseLoose extracts one item per identifier found in each data row.
func ParseLoose(grid [][]string) []models.VoucherItem {
	if len(grid) == 0 {
		return nil
	}
	head, cols := scanLooseHeader(grid)

	var out []models.VoucherItem
	for _, row := range grid[head+1:] {
		cells := make([]string, len(row))
		for i := range row {
			cells[i] = cell(row, i)
		}
		ids := imei.Extract(strings.Join(cells, " | "))
		if len(ids) == 0 {
			if v := cell(row, cols.imei); imei.Validate(v) {
				ids = []string{v}
			}
		}
		for _, id := range ids {
			out = append(out, models.VoucherItem{
				Identifier:  id,
				Date:        cell(row, cols.date),
				Amount:      cell(row, cols.amount),
				Party:       cell(row, cols.party),
				Branch:      cell(row, cols.branch),
				Description: cell(row, cols.describe),
			})
		}
	}
	return out
}

// ItemRow turns a loose voucher item into an external ledger row.
func ItemRow(it models.VoucherItem, source string) models.LedgerRow {
	var notes []string
	if it.Branch != "" {
		notes = append(notes, "Branch: "+it.Branch)
	}
	if it.Description != "" {
		notes = append(notes, it.Description)
	}
	return models.LedgerRow{
		Identifier:      it.Identifier,
		Origin:          originExternalText,
		PurchaseDocType: reconciliation.DocTypeExpenseVoucher,
		PurchaseDate:    it.Date,
		PurchaseParty:   it.Party,
		PurchaseAmount:  NormalizeAmount(it.Amount),
		Brand:           textmatch.Brand(it.Description),
		Model:           it.Description,
		Notes:           strings.Join(notes, "; "),
		DocTypeSummary:  reconciliation.KindExpenseVoucher,
		Status:          string(reconciliation.StatusSellable),
		Source:          source,
	}
}
