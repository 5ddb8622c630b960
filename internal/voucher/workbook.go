package voucher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"imeiledger/internal/logger"
)

// RangeReader reads a value range from a spreadsheet service.
type RangeReader interface {
	ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error)
}

// Reader turns spreadsheet sources into ledger rows.
type Reader struct {
	log zerolog.Logger
}

// NewReader creates a reader.
func NewReader() *Reader {
	return &Reader{log: logger.WithComponent("voucher-reader")}
}

// ReadWorkbook parses an xlsx stream. source names it in annotations and
// duplicate keys.
func (vr *Reader) ReadWorkbook(r io.Reader, source string) (Result, error) {
	const op = "ReadWorkbook"

	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("%s: open %s: %w", op, source, err)
	}
	defer f.Close()

	sheets := make(map[string][][]string)
	order := f.GetSheetList()
	for _, name := range order {
		rows, err := sheetRows(f, name)
		if err != nil {
			vr.log.Warn().
				Err(err).
				Str("source", source).
				Str("sheet", name).
				Msg("Failed to read sheet, skipping")
			continue
		}
		sheets[name] = rows
	}

	res, err := ParseGrids(sheets, order, source)
	if err != nil {
		return res, fmt.Errorf("%s: %s: %w", op, source, err)
	}

	vr.log.Info().
		Str("source", source).
		Int("sheets", len(order)).
		Bool("template", res.Template).
		Int("entries", res.Len()).
		Msg("Workbook read successfully")

	return res, nil
}

// ReadWorkbookBytes is ReadWorkbook over an in-memory download.
func (vr *Reader) ReadWorkbookBytes(data []byte, source string) (Result, error) {
	return vr.ReadWorkbook(bytes.NewReader(data), source)
}

// ReadSheet reads one Google Sheets range, e.g. "GP!A:Z".
func (vr *Reader) ReadSheet(ctx context.Context, rr RangeReader, rangeSpec string) (Result, error) {
	const op = "ReadSheet"

	values, err := rr.ReadRange(ctx, rangeSpec)
	if err != nil {
		return Result{}, fmt.Errorf("%s: failed to read %s: %w", op, rangeSpec, err)
	}
	res, err := ParseGrids(map[string][][]string{"": FromValues(values)}, []string{""}, rangeSpec)
	if err != nil {
		return res, fmt.Errorf("%s: %s: %w", op, rangeSpec, err)
	}

	vr.log.Info().
		Str("range", rangeSpec).
		Bool("template", res.Template).
		Int("entries", res.Len()).
		Msg("Sheet range read successfully")

	return res, nil
}

// sheetRows returns formatted cell text, except that numbers Excel would
// show in scientific notation (long identifiers) are taken raw.
func sheetRows(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return rows, nil
	}
	for i := range rows {
		for j, v := range rows[i] {
			if strings.Contains(v, "E+") && i < len(raw) && j < len(raw[i]) {
				rows[i][j] = raw[i][j]
			}
		}
	}
	return rows, nil
}
