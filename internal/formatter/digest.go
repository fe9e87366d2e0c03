package formatter

import (
	"fmt"
	"strings"
	"time"

	"freshctx/internal/models"
	"freshctx/pkg/metadata"
	"freshctx/pkg/utils"
)

// Column and body widths used when a Digest leaves them unset.
const (
	DefaultTitleWidth   = 60
	DefaultSourceWidth  = 24
	DefaultSummaryWidth = 280
)

// Digest is one aggregation run to render.
type Digest struct {
	GeneratedAt  time.Time
	RunID        string
	Query        string
	Records      []models.ContextRecord
	Failed       []string
	TitleWidth   int
	SourceWidth  int
	SummaryWidth int
}

// RenderDigest renders a stamped markdown digest: a summary table followed by
// one section per record.
func RenderDigest(d Digest) string {
	titleWidth := orDefault(d.TitleWidth, DefaultTitleWidth)
	sourceWidth := orDefault(d.SourceWidth, DefaultSourceWidth)
	summaryWidth := orDefault(d.SummaryWidth, DefaultSummaryWidth)

	var sb strings.Builder

	fmt.Fprintf(&sb, "# Fresh context: %s\n\n", utils.NormalizeWhitespace(d.Query))

	if len(d.Records) == 0 {
		sb.WriteString("_No records found._\n")
	} else {
		sb.WriteString(RecordTable(d.Records, titleWidth, sourceWidth))
		sb.WriteString("\n")

		for i, r := range d.Records {
			fmt.Fprintf(&sb, "\n## %d. %s\n\n", i+1, utils.NormalizeWhitespace(r.Title))
			fmt.Fprintf(&sb, "- Source: %s (%s)\n", r.Source, r.Provider)
			fmt.Fprintf(&sb, "- Published: %s\n", r.PublishedAt)

			if r.URL != "" {
				fmt.Fprintf(&sb, "- URL: %s\n", r.URL)
			}

			if summary := utils.NormalizeWhitespace(r.Summary); summary != "" {
				fmt.Fprintf(&sb, "\n%s\n", utils.TruncateWidth(summary, summaryWidth))
			}
		}
	}

	if len(d.Failed) > 0 {
		fmt.Fprintf(&sb, "\n> Unavailable sources: %s\n", strings.Join(d.Failed, ", "))
	}

	return metadata.Stamp(sb.String(), metadata.Metadata{
		GeneratedAt: d.GeneratedAt,
		RunID:       d.RunID,
		Query:       d.Query,
		Records:     len(d.Records),
	})
}

// RecordTable renders records as an aligned markdown table with truncated cells.
func RecordTable(records []models.ContextRecord, titleWidth, sourceWidth int) string {
	rows := []string{
		"| # | Published | Provider | Source | Title |",
		"| --- | --- | --- | --- | --- |",
	}

	for i, r := range records {
		rows = append(rows, fmt.Sprintf("| %d | %s | %s | %s | %s |",
			i+1,
			r.PublishedAt,
			cell(r.Provider, sourceWidth),
			cell(r.Source, sourceWidth),
			cell(r.Title, titleWidth)))
	}

	return strings.Join(alignTable(rows), "\n") + "\n"
}

// cell flattens, truncates and escapes text for a table cell.
func cell(text string, width int) string {
	text = utils.TruncateWidth(utils.NormalizeWhitespace(text), width)

	return strings.ReplaceAll(text, "|", `\|`)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}
