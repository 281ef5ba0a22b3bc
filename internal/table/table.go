// Package table gives the pipeline row access to the first column of a
// spreadsheet. Row 1 is the header; data rows are addressed by their
// 0-based index below it.
package table

import (
	"fmt"
	"path/filepath"
)

// HeaderRows is the number of rows above the first data row.
const HeaderRows = 1

// Table is the first sheet of a workbook (or a CSV file) seen as a header
// plus data rows. Only the first column is read or written.
type Table interface {
	// Sheet is the name of the sheet being accessed.
	Sheet() string
	// Label is the header of the first column.
	Label() string
	// Len is the number of data rows.
	Len() int
	// Value returns the raw first-column value of data row i.
	Value(i int) string
	// SetValue replaces the first-column value of data row i.
	SetValue(i int, v string) error
	// Address returns the sheet-qualified cell address of data row i.
	Address(i int) string
	// Bytes serializes the table in its original format.
	Bytes() ([]byte, error)
	Close() error
}

// Open sniffs path and opens it with the matching reader.
func Open(path string) (Table, error) {
	format, err := Sniff(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatOOXML:
		return openXLSX(path)
	case FormatCSV:
		return openCSV(path)
	case FormatOLE2:
		return nil, fmt.Errorf("%s is a legacy OLE2 .xls workbook; save it as .xlsx first", filepath.Base(path))
	default:
		return nil, fmt.Errorf("%s is not a recognised table (expected .xlsx, .xlsm or .csv)", filepath.Base(path))
	}
}

// rowNumber converts a data index to the 1-based sheet row.
func rowNumber(i int) int { return i + HeaderRows + 1 }

func checkIndex(t Table, i int) error {
	if i < 0 || i >= t.Len() {
		return fmt.Errorf("data row %d out of range (table has %d)", i, t.Len())
	}
	return nil
}

// labelOrColumn falls back to the column letter for a blank header.
func labelOrColumn(label string) string {
	if label == "" {
		return ColToLetter(1)
	}
	return label
}
