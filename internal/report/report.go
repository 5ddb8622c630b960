// Package report writes the reconciliation ledger as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the report.
const SheetName = "IMEI_REPORT"

const (
	minColumnWidth = 12
	maxColumnWidth = 60
)

// Write renders headers and rows as a single-sheet workbook.
func Write(w io.Writer, headers []string, rows [][]string) error {
	const op = "report.Write"

	f, err := build(headers, rows)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("%s: failed to write workbook: %w", op, err)
	}
	return nil
}

// WriteFile writes the workbook to path, creating parent directories.
func WriteFile(path string, headers []string, rows [][]string) error {
	const op = "report.WriteFile"

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	f, err := build(headers, rows)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("%s: failed to save %s: %w", op, path, err)
	}
	return nil
}

func build(headers []string, rows [][]string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}

	widths := make([]int, len(headers))
	if err := setRow(f, 1, headers, widths); err != nil {
		f.Close()
		return nil, err
	}
	for i, r := range rows {
		if err := setRow(f, i+2, r, widths); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := styleHeader(f, len(headers)); err != nil {
		f.Close()
		return nil, err
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, float64(clampWidth(w))); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// setRow writes cells as strings so identifiers are never turned into
// numbers, and tracks the widest value seen per column.
func setRow(f *excelize.File, rowNum int, values []string, widths []int) error {
	for i, v := range values {
		cellRef, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SheetName, cellRef, v); err != nil {
			return err
		}
		if i < len(widths) {
			if n := utf8.RuneCountInString(v); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return nil
}

func styleHeader(f *excelize.File, columns int) error {
	if columns == 0 {
		return nil
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDDDDD"}},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(columns, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, "A1", last, style)
}

func clampWidth(n int) int {
	n += 2
	if n < minColumnWidth {
		return minColumnWidth
	}
	if n > maxColumnWidth {
		return maxColumnWidth
	}
	return n
}
