// Package models defines the data structures shared by the retrieval engine.
package models

import (
	"time"
)

// Display forms of a record timestamp.
const (
	// DisplayLayout renders as "2024-02-01 00:00 UTC".
	DisplayLayout = "2006-01-02 15:04 UTC"
	UnknownDate   = "Unknown date"
	Untitled      = "Untitled"
)

// ContextRecord is one normalized piece of freshness context.
type ContextRecord struct {
	Metadata    map[string]any `json:"metadata,omitempty"`
	Provider    string         `json:"provider"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	URL         string         `json:"url"`
	PublishedAt string         `json:"published_at"`
	Content     string         `json:"content"`
}

// RecordInput carries raw provider fields into the record builder.
// Published may be a string, a year number, a time.Time, or []int date parts.
type RecordInput struct {
	Published any
	Extra     map[string]any
	Provider  string
	Source    string
	Title     string
	Summary   string
	URL       string
	Content   string
}

// DedupKey is the URL, or "title::source" when the record has no URL.
func (r ContextRecord) DedupKey() string {
	if r.URL != "" {
		return r.URL
	}

	return r.Title + "::" + r.Source
}

// PublishedTime recovers the orderable time from PublishedAt.
// Unknown or unparsable values yield the zero time, which orders before every real date.
func (r ContextRecord) PublishedTime() time.Time {
	if r.PublishedAt == "" || r.PublishedAt == UnknownDate {
		return time.Time{}
	}

	t, err := time.Parse(DisplayLayout, r.PublishedAt)
	if err != nil {
		return time.Time{}
	}

	return t
}

// HasDate reports whether the record carries a known timestamp.
func (r ContextRecord) HasDate() bool {
	return !r.PublishedTime().IsZero()
}
