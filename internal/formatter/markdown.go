// Package formatter renders context records as markdown.
package formatter

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// minColumnWidth is the shortest separator markdown renderers accept ("---").
const minColumnWidth = 3

// FormatMarkdown re-aligns every pipe table in content so that columns line
// up by display width. Lines outside tables are left untouched.
func FormatMarkdown(content string) string {
	lines := strings.Split(content, "\n")

	var formattedLines []string

	var tableBuffer []string

	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)

		if strings.HasPrefix(trimmedLine, "|") && strings.HasSuffix(trimmedLine, "|") {
			tableBuffer = append(tableBuffer, line)
			continue
		}

		if len(tableBuffer) > 0 {
			formattedLines = append(formattedLines, alignTable(tableBuffer)...)
			tableBuffer = nil
		}

		formattedLines = append(formattedLines, line)
	}

	if len(tableBuffer) > 0 {
		formattedLines = append(formattedLines, alignTable(tableBuffer)...)
	}

	return strings.Join(formattedLines, "\n")
}

// SplitRow splits a table row into trimmed cells. Escaped pipes stay inside their cell.
func SplitRow(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")

	if strings.HasSuffix(row, "|") && !strings.HasSuffix(row, `\|`) {
		row = strings.TrimSuffix(row, "|")
	}

	var cells []string

	var cell strings.Builder

	escaped := false

	for _, r := range row {
		switch {
		case escaped:
			cell.WriteRune(r)

			escaped = false
		case r == '\\':
			cell.WriteRune(r)

			escaped = true
		case r == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteRune(r)
		}
	}

	return append(cells, strings.TrimSpace(cell.String()))
}

// IsSeparatorRow reports whether cells form a header separator ("---", ":-:").
func IsSeparatorRow(cells []string) bool {
	for _, cell := range cells {
		if strings.Trim(cell, "-: ") != "" || !strings.Contains(cell, "-") {
			return false
		}
	}

	return len(cells) > 0
}

func alignTable(rows []string) []string {
	// header and separator are the minimum for a table
	if len(rows) < 2 {
		return rows
	}

	table := make([][]string, len(rows))
	colCount := 0

	for i, row := range rows {
		table[i] = SplitRow(row)
		colCount = max(colCount, len(table[i]))
	}

	separatorRowIdx := -1
	if IsSeparatorRow(table[1]) {
		separatorRowIdx = 1
	}

	colWidths := make([]int, colCount)
	for i := range colWidths {
		colWidths[i] = minColumnWidth
	}

	for rIdx, row := range table {
		if rIdx == separatorRowIdx {
			continue
		}

		for i, cell := range row {
			colWidths[i] = max(colWidths[i], runewidth.StringWidth(cell))
		}
	}

	result := make([]string, 0, len(table))

	for rIdx, row := range table {
		var sb strings.Builder

		sb.WriteString("|")

		for j := range colCount {
			sb.WriteString(" ")

			if rIdx == separatorRowIdx {
				sb.WriteString(strings.Repeat("-", colWidths[j]))
			} else {
				content := ""
				if j < len(row) {
					content = row[j]
				}

				sb.WriteString(runewidth.FillRight(content, colWidths[j]))
			}

			sb.WriteString(" |")
		}

		result = append(result, sb.String())
	}

	return result
}
