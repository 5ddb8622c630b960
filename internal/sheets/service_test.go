package sheets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"edit url", "https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0", "1AbC-d_9", false},
		{"export url", "https://docs.google.com/spreadsheets/d/xyz123/export?format=xlsx", "xyz123", false},
		{"not sheets", "https://example.com/file.xlsx", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractSpreadsheetID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportURL(t *testing.T) {
	assert.Equal(t,
		"https://docs.google.com/spreadsheets/d/abc/export?format=xlsx",
		ExportURL("https://docs.google.com/spreadsheets/d/abc/edit?usp=sharing"))
	assert.Equal(t, "https://example.com/gp.xlsx", ExportURL("https://example.com/gp.xlsx"))

	published := "https://docs.google.com/spreadsheets/d/e/2PACX-1vQ/pub?output=xlsx"
	assert.Equal(t, published, ExportURL(published))
}

func TestToValues(t *testing.T) {
	values := toValues([]string{"IMEI", "Status"}, [][]string{{"490154203237518", "SOLD"}})
	require.Len(t, values, 2)
	assert.Equal(t, []interface{}{"IMEI", "Status"}, values[0])
	assert.Equal(t, []interface{}{"490154203237518", "SOLD"}, values[1])
}

func TestNewSheetsServiceRejectsBadInput(t *testing.T) {
	_, err := NewSheetsService(context.Background(), "https://example.com", Credentials{JSON: "{}"})
	assert.Error(t, err)

	_, err = NewSheetsService(context.Background(), "https://docs.google.com/spreadsheets/d/abc/edit", Credentials{})
	assert.Error(t, err)

	_, err = NewSheetsService(context.Background(), "https://docs.google.com/spreadsheets/d/abc/edit", Credentials{JSON: "not json"})
	assert.Error(t, err)
}
