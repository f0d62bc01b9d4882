package fetcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

type testSheet struct {
	name string
	rows [][]string
}

func createTestXLSX(t *testing.T, sheets ...testSheet) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, testSheet{"Sheet1", [][]string{
		{"Name", "Age", "City"},
		{"Alice", "30", "NYC"},
		{"Bob", "25", "LA"},
	}})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Name", "Age", "City"}, rows[0])
	assert.Equal(t, []string{"Bob", "25", "LA"}, rows[2])
}

func TestReadXLSX_SkipRowsAndTrim(t *testing.T) {
	path := createTestXLSX(t, testSheet{"Sheet1", [][]string{
		{"Header1", "Header2"},
		{"  a ", "b"},
		{"", ""},
		{"c", "d"},
	}})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestWorkbook_Sheets(t *testing.T) {
	path := createTestXLSX(t,
		testSheet{"Liquor Licences", [][]string{{"Licence"}, {"300123"}}},
		testSheet{"Service Areas", [][]string{{"Licence", "Capacity"}, {"300123", "120"}}},
	)

	wb, err := OpenXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Liquor Licences", "Service Areas"}, wb.SheetNames())
	assert.True(t, wb.HasSheet("Service Areas"))
	assert.False(t, wb.HasSheet("service areas"))

	rows, err := wb.Rows(XLSXOptions{SheetName: "Service Areas"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Licence", "Capacity"}, {"300123", "120"}}, rows)

	rows, err = wb.Rows(XLSXOptions{SheetIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, "300123", rows[1][0])
}

func TestWorkbook_MissingSheet(t *testing.T) {
	path := createTestXLSX(t, testSheet{"Sheet1", [][]string{{"a"}}})
	wb, err := OpenXLSX(path)
	require.NoError(t, err)

	_, err = wb.Rows(XLSXOptions{SheetName: "Nope"})
	assert.Error(t, err)

	_, err = wb.Rows(XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestOpenXLSX_NotAWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, writeTestFile(path, "not a zip"))
	_, err := OpenXLSX(path)
	assert.Error(t, err)
}

func TestExcelSerialTime(t *testing.T) {
	got := ExcelSerialTime(45474, false)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.July, got.Month())
	assert.Equal(t, 1, got.Day())
}
