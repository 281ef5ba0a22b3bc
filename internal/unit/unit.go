// Package unit defines the row identifier and the file naming convention
// shared by extract, reword and merge. The three stages never talk to each
// other directly; they only agree on the names produced here.
package unit

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Convention is the version of the unit file naming scheme.
const Convention = "v1"

// Pattern documents the file name layout for Convention v1.
const Pattern = "row_<id>_col_<label>.txt"

// FirstRowOffset maps a 0-based data row index to its identifier. Row 1 is
// the header, so the first data row is row 2.
const FirstRowOffset = 2

const (
	namePrefix = "row_"
	nameSuffix = ".txt"
	labelSep   = "_col_"
)

// ID identifies a data row. It equals the 1-based spreadsheet row number.
type ID int

// IDForIndex returns the identifier of the data row at index i (0-based,
// header excluded).
func IDForIndex(i int) ID { return ID(i + FirstRowOffset) }

// Index is the inverse of IDForIndex. It is negative for identifiers that
// cannot address a data row.
func (id ID) Index() int { return int(id) - FirstRowOffset }

func (id ID) String() string { return strconv.Itoa(int(id)) }

// Unit is one row's first-column text.
type Unit struct {
	ID    ID
	Label string
	Text  string
}

// FileName returns the file name for this unit.
func (u Unit) FileName() string { return FileName(u.ID, u.Label) }

// ErrUnparsable is matched by every ParseError.
var ErrUnparsable = errors.New("unit file name does not match " + Pattern)

// ParseError reports a file name that does not follow the convention.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable unit file name %q: %s", e.Name, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrUnparsable }

var nameRe = regexp.MustCompile(`^row_(\d+)_col_(.*)\.txt$`)

// FileName builds "row_<id>_col_<label>.txt" with the label sanitized.
func FileName(id ID, label string) string {
	return namePrefix + id.String() + labelSep + SanitizeLabel(label) + nameSuffix
}

// SanitizeLabel replaces every rune that is not a letter, digit, '-' or '.'
// with '_'. An empty label becomes "column".
func SanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "column"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IsCandidate reports whether name looks like a unit file at all. Only
// candidates are considered by the batch driver and the merger; anything
// else in a unit directory is ignored.
func IsCandidate(name string) bool {
	return strings.HasPrefix(name, namePrefix) && strings.HasSuffix(name, nameSuffix)
}

// ParseFileName extracts the identifier from a unit file name.
func ParseFileName(name string) (ID, error) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, &ParseError{Name: name, Reason: "expected " + Pattern}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ParseError{Name: name, Reason: "identifier out of range"}
	}
	return ID(n), nil
}
