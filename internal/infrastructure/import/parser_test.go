package fileimport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	t.Run("normalizes headers and skips blank rows", func(t *testing.T) {
		data := "\xEF\xBB\xBFDocument No, Amount ,Kind\nINV-1, 100.00 ,invoice\n,,\nINV-2,50,invoice\n"
		table, err := ParseCSV(strings.NewReader(data))
		require.NoError(t, err)

		assert.Equal(t, []string{"document_no", "amount", "kind"}, table.Headers)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, 2, table.Rows[0].LineNumber)
		assert.Equal(t, "100.00", table.Rows[0].Get("amount"))
		assert.Equal(t, 4, table.Rows[1].LineNumber)
	})

	t.Run("short rows pad with empty values", func(t *testing.T) {
		table, err := ParseCSV(strings.NewReader("a,b\n1\n"))
		require.NoError(t, err)
		assert.Equal(t, "", table.Rows[0].Get("b"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyFile)

		_, err = ParseCSV(strings.NewReader("a,b\n"))
		assert.ErrorIs(t, err, ErrNoDataRows)

		_, err = ParseCSV(bytes.NewReader([]byte{'a', ',', 0xff, 0xfe, '\n'}))
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Document No", "Document Date", "Amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"INV-7", "2024-01-15", 250.5}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := Parse("items.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"document_no", "document_date", "amount"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "INV-7", table.Rows[0].Get("document_no"))
	assert.Equal(t, "2024-01-15", table.Rows[0].Get("document_date"))
	assert.Equal(t, "250.5", table.Rows[0].Get("amount"))
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse("items.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTable_MissingHeaders(t *testing.T) {
	table := &Table{Headers: []string{"ledger", "amount"}}
	assert.Equal(t, []string{"kind"}, table.MissingHeaders([]string{"ledger", "kind", "amount"}))
}
