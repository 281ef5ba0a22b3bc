package table

import (
	"strconv"
	"strings"
)

// ColToLetter converts a 1-indexed column number to Excel letter(s)
func ColToLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}

// FormatAddress builds a single-cell address like "Sheet1!A7". Sheet names
// that are not plain identifiers are quoted the way Excel quotes them.
func FormatAddress(sheet string, row, col int) string {
	cell := ColToLetter(col) + strconv.Itoa(row)
	if sheet == "" {
		return cell
	}
	if strings.ContainsAny(sheet, " '!-.") {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet + "!" + cell
}
