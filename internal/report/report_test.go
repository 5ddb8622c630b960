package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteRoundTrip(t *testing.T) {
	headers := []string{"IMEI", "Status", "Notes"}
	rows := [][]string{
		{"490154203237518", "SOLD", strings.Repeat("x", 100)},
		{"352099001761481", "SELLABLE", ""},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, headers, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, headers, got[0])
	assert.Equal(t, "490154203237518", got[1][0], "identifiers stay text")
	assert.Equal(t, "SELLABLE", got[2][1])

	w, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.Equal(t, float64(17), w)
	w, err = f.GetColWidth(SheetName, "C")
	require.NoError(t, err)
	assert.Equal(t, float64(maxColumnWidth), w)

	styleID, err := f.GetCellStyle(SheetName, "B1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, WriteFile(path, []string{"IMEI"}, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"IMEI"}}, rows)
}

func TestClampWidth(t *testing.T) {
	assert.Equal(t, minColumnWidth, clampWidth(0))
	assert.Equal(t, 20, clampWidth(18))
	assert.Equal(t, maxColumnWidth, clampWidth(500))
}
