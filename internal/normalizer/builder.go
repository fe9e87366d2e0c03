package normalizer

import (
	"strings"

	"freshctx/internal/models"
)

// strippedTags is the complete set of markup StripHTML removes. It is not a sanitizer.
var strippedTags = strings.NewReplacer(
	"<p>", " ",
	"</p>", " ",
	"<br>", " ",
	"<br/>", " ",
	"<br />", " ",
)

// StripHTML replaces paragraph and line-break tags with spaces and trims the result.
func StripHTML(text string) string {
	if text == "" {
		return ""
	}

	return strings.TrimSpace(strippedTags.Replace(text))
}

// Build constructs a context record, filling every missing field with its placeholder.
func Build(in models.RecordInput) models.ContextRecord {
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = in.Provider
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = models.Untitled
	}

	summary := StripHTML(in.Summary)

	content := StripHTML(in.Content)
	if content == "" {
		content = summary
	}

	_, published := Normalize(in.Published)

	return models.ContextRecord{
		Provider:    in.Provider,
		Source:      source,
		Title:       title,
		Summary:     summary,
		URL:         strings.TrimSpace(in.URL),
		PublishedAt: published,
		Content:     content,
		Metadata:    compactExtra(in.Extra),
	}
}

// compactExtra drops empty values and returns nil when nothing is left.
func compactExtra(extra map[string]any) map[string]any {
	var out map[string]any

	for key, value := range extra {
		if isEmptyValue(value) {
			continue
		}

		if out == nil {
			out = make(map[string]any, len(extra))
		}

		out[key] = value
	}

	return out
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
