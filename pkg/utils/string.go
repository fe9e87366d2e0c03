package utils

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Ellipsis is appended to text shortened by TruncateWidth.
const Ellipsis = "..."

// NormalizeWhitespace collapses runs of whitespace, including newlines, into single spaces.
func NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// TruncateWidth shortens str so that its display width, ellipsis included,
// does not exceed maxWidth. Wide (CJK) runes count as two columns.
func TruncateWidth(str string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}

	if runewidth.StringWidth(str) <= maxWidth {
		return str
	}

	return runewidth.Truncate(str, maxWidth, Ellipsis)
}
