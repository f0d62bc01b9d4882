package fetcher

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects a sheet and the rows to return from it.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip
}

// Workbook is an opened XLSX file. The whole workbook is parsed on open, so
// several sheets can be read without touching the file again.
type Workbook struct {
	file *xlsx.File
}

// OpenXLSX parses the workbook at path.
func OpenXLSX(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	return &Workbook{file: f}, nil
}

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, 0, len(w.file.Sheets))
	for _, s := range w.file.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// HasSheet reports whether a sheet with this exact name exists.
func (w *Workbook) HasSheet(name string) bool {
	_, ok := w.file.Sheet[name]
	return ok
}

// Date1904 reports whether serial dates in this workbook use the 1904 epoch.
func (w *Workbook) Date1904() bool {
	return w.file.Date1904
}

// Rows returns every row of the selected sheet as trimmed strings. Rows
// that are entirely blank are dropped.
func (w *Workbook) Rows(opts XLSXOptions) ([][]string, error) {
	sheet, err := w.sheet(opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func (w *Workbook) sheet(opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := w.file.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(w.file.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(w.file.Sheets))
	}
	return w.file.Sheets[opts.SheetIndex], nil
}

// ReadXLSX opens path and returns the rows of one sheet.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	wb, err := OpenXLSX(path)
	if err != nil {
		return nil, err
	}
	return wb.Rows(opts)
}

// ExcelSerialTime converts an Excel serial day number to a time.
func ExcelSerialTime(serial float64, date1904 bool) time.Time {
	return xlsx.TimeFromExcelTime(serial, date1904)
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
