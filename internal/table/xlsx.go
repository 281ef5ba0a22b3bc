package table

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type xlsxTable struct {
	f     *excelize.File
	sheet string
	rows  [][]string
}

func openXLSX(path string) (*xlsxTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return &xlsxTable{f: f, sheet: sheet, rows: rows}, nil
}

func (t *xlsxTable) Sheet() string { return t.sheet }

func (t *xlsxTable) Label() string {
	if len(t.rows) == 0 || len(t.rows[0]) == 0 {
		return labelOrColumn("")
	}
	return labelOrColumn(strings.TrimSpace(t.rows[0][0]))
}

func (t *xlsxTable) Len() int {
	if len(t.rows) <= HeaderRows {
		return 0
	}
	return len(t.rows) - HeaderRows
}

func (t *xlsxTable) Value(i int) string {
	if checkIndex(t, i) != nil {
		return ""
	}
	row := t.rows[i+HeaderRows]
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

func (t *xlsxTable) SetValue(i int, v string) error {
	if err := checkIndex(t, i); err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNumber(i))
	if err != nil {
		return err
	}
	if err := t.f.SetCellStr(t.sheet, cell, v); err != nil {
		return err
	}
	row := t.rows[i+HeaderRows]
	if len(row) == 0 {
		row = append(row, v)
	} else {
		row[0] = v
	}
	t.rows[i+HeaderRows] = row
	return nil
}

func (t *xlsxTable) Address(i int) string { return FormatAddress(t.sheet, rowNumber(i), 1) }

func (t *xlsxTable) Bytes() ([]byte, error) {
	buf, err := t.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *xlsxTable) Close() error { return t.f.Close() }
