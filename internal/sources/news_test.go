package sources

import (
	"context"
	"errors"
	"testing"

	"freshctx/internal/config"
)

func newsConfig(key string) config.NewsConfig {
	cfg := config.Default().Providers.News
	cfg.APIKey = key
	cfg.BaseURL = "https://news.test/v2"

	return cfg
}

func TestNewsSource_SkipsWithoutKey(t *testing.T) {
	f := newMockFetcher()

	records, err := NewNewsSource(newsConfig(""), f, nil).Fetch(context.Background(), "agents", 8)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}

	if f.count() != 0 {
		t.Errorf("expected no requests without an API key, got %d", f.count())
	}
}

func TestNewsSource_Fetch(t *testing.T) {
	f := newMockFetcher().handle("news.test/v2/everything", `{
		"status": "ok",
		"articles": [
			{
				"source": {"name": "The Verge"},
				"author": "Jane Doe",
				"title": "Model release",
				"description": "<p>A new model.</p>",
				"url": "https://example.org/a",
				"publishedAt": "2024-05-01T12:30:00Z",
				"content": "Full text"
			},
			{
				"source": {"name": ""},
				"title": "",
				"url": "https://example.org/b",
				"publishedAt": "garbage"
			}
		]
	}`)

	records, err := NewNewsSource(newsConfig("secret"), f, nil).Fetch(context.Background(), "model", 2)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	req, ok := f.requestTo("news.test/v2/everything")
	if !ok {
		t.Fatal("no request to /everything")
	}

	if req.header.Get("X-Api-Key") != "secret" {
		t.Errorf("X-Api-Key = %q", req.header.Get("X-Api-Key"))
	}

	q := req.url.Query()
	if q.Get("q") != "model" || q.Get("sortBy") != "publishedAt" || q.Get("language") != "en" {
		t.Errorf("unexpected query %v", q)
	}

	// limit hint 2 is below max_results
	if q.Get("pageSize") != "2" {
		t.Errorf("pageSize = %q, want 2", q.Get("pageSize"))
	}

	first := records[0]
	if first.Provider != ProviderNews || first.Source != "The Verge" {
		t.Errorf("provider/source = %q/%q", first.Provider, first.Source)
	}

	if first.Summary != "A new model." || first.PublishedAt != "2024-05-01 12:30 UTC" {
		t.Errorf("summary/published = %q/%q", first.Summary, first.PublishedAt)
	}

	if first.Metadata["author"] != "Jane Doe" {
		t.Errorf("author metadata = %v", first.Metadata)
	}

	second := records[1]
	if second.Source != "News article" || second.Title != "Untitled" || second.PublishedAt != "Unknown date" {
		t.Errorf("fallbacks not applied: %+v", second)
	}

	if second.Metadata != nil {
		t.Errorf("expected no metadata, got %v", second.Metadata)
	}
}

func TestNewsSource_TransportFailureIsEmpty(t *testing.T) {
	f := newMockFetcher().fail("news.test/v2/everything", errors.New("connection refused"))

	records, err := NewNewsSource(newsConfig("secret"), f, nil).Fetch(context.Background(), "model", 8)
	if err != nil || len(records) != 0 {
		t.Errorf("expected empty result and nil error, got %d records, err %v", len(records), err)
	}
}
