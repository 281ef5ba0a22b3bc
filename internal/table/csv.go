package table

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// csvTable keeps blank lines as empty records so row numbers match the
// line layout a spreadsheet application shows. Blank lines after the last
// record are not rows; they are only written back.
type csvTable struct {
	name     string
	records  [][]string
	trailing int
	bom      bool
}

func openCSV(path string) (*csvTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t := &csvTable{name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	if bytes.HasPrefix(data, utf8BOM) {
		t.bom = true
		data = data[len(utf8BOM):]
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		// encoding/csv skips empty lines; count them from the raw input
		// between the previous record and this one.
		start := int(r.InputOffset())
		rec, err := r.Read()
		if err == io.EOF {
			t.trailing = blankLines(data[start:])
			break
		}
		if err != nil {
			return nil, err
		}
		for n := blankLines(data[start:]); n > 0; n-- {
			t.records = append(t.records, nil)
		}
		t.records = append(t.records, rec)
	}
	return t, nil
}

// blankLines counts the empty lines at the start of data.
func blankLines(data []byte) int {
	n := 0
	for {
		switch {
		case bytes.HasPrefix(data, []byte("\n")):
			data = data[1:]
		case bytes.HasPrefix(data, []byte("\r\n")):
			data = data[2:]
		default:
			return n
		}
		n++
	}
}

func (t *csvTable) Sheet() string { return t.name }

func (t *csvTable) Label() string {
	if len(t.records) == 0 || len(t.records[0]) == 0 {
		return labelOrColumn("")
	}
	return labelOrColumn(strings.TrimSpace(t.records[0][0]))
}

func (t *csvTable) Len() int {
	if len(t.records) <= HeaderRows {
		return 0
	}
	return len(t.records) - HeaderRows
}

func (t *csvTable) Value(i int) string {
	if checkIndex(t, i) != nil {
		return ""
	}
	rec := t.records[i+HeaderRows]
	if len(rec) == 0 {
		return ""
	}
	return rec[0]
}

func (t *csvTable) SetValue(i int, v string) error {
	if err := checkIndex(t, i); err != nil {
		return err
	}
	rec := t.records[i+HeaderRows]
	if len(rec) == 0 {
		rec = append(rec, v)
	} else {
		rec[0] = v
	}
	t.records[i+HeaderRows] = rec
	return nil
}

func (t *csvTable) Address(i int) string { return FormatAddress(t.name, rowNumber(i), 1) }

func (t *csvTable) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if t.bom {
		buf.Write(utf8BOM)
	}
	w := csv.NewWriter(&buf)
	for _, rec := range t.records {
		if isBlank(rec) {
			w.Flush()
			buf.WriteByte('\n')
			continue
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	buf.Write(bytes.Repeat([]byte("\n"), t.trailing))
	return buf.Bytes(), nil
}

// isBlank reports a record that serializes as an empty line.
func isBlank(rec []string) bool {
	return len(rec) == 0 || (len(rec) == 1 && rec[0] == "")
}

func (t *csvTable) Close() error { return nil }
