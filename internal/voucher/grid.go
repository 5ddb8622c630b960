// Package voucher reads external ledgers (expense-voucher workbooks,
// previously exported reports, Google Sheets ranges) into ledger rows.
package voucher

import (
	"errors"
	"fmt"
	"strings"

	"imeiledger/pkg/models"
)

var (
	// ErrNoHeader is returned when a grid has no recognizable header row.
	ErrNoHeader = errors.New("no known header row found")

	// ErrEmptyWorkbook is returned for workbooks without any data rows.
	ErrEmptyWorkbook = errors.New("workbook has no data")
)

// Result is what a source yielded: structured template rows, or loose
// items when no template header was recognized.
type Result struct {
	Rows  []models.LedgerRow
	Items []models.VoucherItem
	// Template reports whether Rows came from a recognized 24-column layout.
	Template bool
}

// LedgerRows returns every result entry in ledger row form.
func (r Result) LedgerRows(source string) []models.LedgerRow {
	if r.Template {
		return r.Rows
	}
	out := make([]models.LedgerRow, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, ItemRow(it, source))
	}
	return out
}

// Len returns the number of entries.
func (r Result) Len() int {
	if r.Template {
		return len(r.Rows)
	}
	return len(r.Items)
}

// ParseGrids prefers template rows across all sheets and falls back to
// loose item detection when no sheet carries a template header.
func ParseGrids(sheets map[string][][]string, order []string, source string) (Result, error) {
	var res Result
	nonEmpty := false
	for _, name := range order {
		grid := sheets[name]
		if len(grid) > 0 {
			nonEmpty = true
		}
		rows, err := ParseTemplate(grid, sourceName(source, name))
		if err != nil {
			continue
		}
		res.Rows = append(res.Rows, rows...)
		res.Template = true
	}
	if !nonEmpty {
		return res, ErrEmptyWorkbook
	}
	if res.Template {
		return res, nil
	}
	for _, name := range order {
		res.Items = append(res.Items, ParseLoose(sheets[name])...)
	}
	return res, nil
}

func sourceName(source, sheet string) string {
	if sheet == "" {
		return source
	}
	return fmt.Sprintf("%s#%s", source, sheet)
}

// cell returns the trimmed cell at index i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.Join(strings.Fields(row[i]), " ")
}

// getString safely extracts a string value from a row slice
func getString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[index]))
}

// FromValues converts a Sheets API value range into a string grid.
func FromValues(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, row := range values {
		r := make([]string, len(row))
		for i := range row {
			r[i] = getString(row, i)
		}
		out = append(out, r)
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
