package table

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format is the detected container format of a table file.
type Format int

const (
	FormatUnknown Format = iota
	FormatOLE2           // Binary .xls (magic: d0cf11e0a1b11ae1)
	FormatOOXML          // ZIP-based .xlsx (magic: 504b0304)
	FormatCSV            // comma separated text, detected by extension
)

func (f Format) String() string {
	switch f {
	case FormatOLE2:
		return "OLE2"
	case FormatOOXML:
		return "OOXML"
	case FormatCSV:
		return "CSV"
	default:
		return "unknown"
	}
}

// Sniff reads the first bytes of a file and returns the detected format.
// Text formats have no magic bytes, so CSV is recognised by extension once
// the binary signatures have been ruled out.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	buf := make([]byte, 8)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}

	if n >= 4 {
		// OLE2 Compound Document: d0 cf 11 e0
		if buf[0] == 0xd0 && buf[1] == 0xcf && buf[2] == 0x11 && buf[3] == 0xe0 {
			return FormatOLE2, nil
		}
		// ZIP (OOXML): PK\x03\x04
		if buf[0] == 0x50 && buf[1] == 0x4b && buf[2] == 0x03 && buf[3] == 0x04 {
			return FormatOOXML, nil
		}
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV, nil
	}
	return FormatUnknown, nil
}
