package voucher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"imeiledger/internal/imei"
	"imeiledger/pkg/models"
)

// Targets is an explicit list of identifiers to reconcile.
type Targets struct {
	Identifiers []string
	// Rows holds template rows when the list was itself a report workbook.
	Rows []models.LedgerRow
}

// LoadTargets reads a target list from xlsx (template rows, otherwise the
// first column), or from any text file (every identifier in the text).
// Order of first appearance is kept.
func LoadTargets(path string) (Targets, error) {
	const op = "LoadTargets"

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return Targets{}, fmt.Errorf("%s: %w", op, err)
		}
		defer f.Close()

		sheets := make(map[string][][]string)
		order := f.GetSheetList()
		for _, name := range order {
			rows, err := sheetRows(f, name)
			if err != nil {
				return Targets{}, fmt.Errorf("%s: read sheet %s: %w", op, name, err)
			}
			sheets[name] = rows
		}
		return targetsFromGrids(sheets, order, filepath.Base(path)), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Targets{}, fmt.Errorf("%s: %w", op, err)
	}
	return Targets{Identifiers: imei.All(string(data))}, nil
}

func targetsFromGrids(sheets map[string][][]string, order []string, source string) Targets {
	var t Targets
	for _, name := range order {
		if rows, err := ParseTemplate(sheets[name], sourceName(source, name)); err == nil {
			t.Rows = append(t.Rows, rows...)
		}
	}
	var text strings.Builder
	if len(t.Rows) > 0 {
		for _, r := range t.Rows {
			text.WriteString(r.Identifier)
			text.WriteByte('\n')
		}
	} else {
		for _, name := range order {
			for _, row := range sheets[name] {
				text.WriteString(cell(row, 0))
				text.WriteByte('\n')
			}
		}
	}
	t.Identifiers = imei.All(text.String())
	return t
}
