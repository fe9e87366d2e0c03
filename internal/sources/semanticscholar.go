package sources

import (
	"context"
	"net/url"
	"strconv"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
)

// SemanticScholarSource searches the Semantic Scholar graph API.
type SemanticScholarSource struct {
	clock
	fetcher crawler.Fetcher
	log     *logger.Logger
	cfg     config.SemanticScholarConfig
}

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract"`
	URL             string     `json:"url"`
	Venue           string     `json:"venue"`
	PublicationDate string     `json:"publicationDate"`
	Year            *int       `json:"year"`
	Authors         []s2Author `json:"authors"`
}

type s2Author struct {
	Name string `json:"name"`
}

const s2Fields = "title,abstract,url,venue,publicationDate,year,authors"

// NewSemanticScholarSource creates the scholarly-graph adapter.
func NewSemanticScholarSource(cfg config.SemanticScholarConfig, f crawler.Fetcher, log *logger.Logger) *SemanticScholarSource {
	return &SemanticScholarSource{
		fetcher: f,
		log:     providerLogger(log, ProviderSemanticScholar),
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *SemanticScholarSource) Name() string { return ProviderSemanticScholar }

// Fetch over-fetches twice the configured result count, drops papers older
// than the age cutoff and keeps at most MaxResults. Undated papers are kept.
func (s *SemanticScholarSource) Fetch(ctx context.Context, query string, _ int) ([]models.ContextRecord, error) {
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("fieldsOfStudy", "Computer Science")
	params.Set("sort", "publicationDate:desc")
	params.Set("limit", strconv.Itoa(s.cfg.MaxResults*2))
	params.Set("offset", "0")
	params.Set("fields", s2Fields)

	var payload s2SearchResponse
	if err := crawler.GetJSON(ctx, s.fetcher, crawler.BuildURL(s.cfg.BaseURL, "/paper/search", params), nil, &payload); err != nil {
		s.log.Warn("paper search failed", "error", err)
		return nil, nil
	}

	now := s.Now()

	var results []models.ContextRecord

	for _, paper := range payload.Data {
		if len(results) >= s.cfg.MaxResults {
			break
		}

		var published any
		if paper.PublicationDate != "" {
			published = paper.PublicationDate
		} else if paper.Year != nil {
			published = *paper.Year
		}

		t, _ := normalizer.Coerce(published)
		if normalizer.IsStale(t, now, s.cfg.MaxAgeDays) {
			continue
		}

		var authors []string

		for _, author := range paper.Authors {
			if author.Name != "" {
				authors = append(authors, author.Name)
			}
		}

		source := paper.Venue
		if source == "" {
			source = "Semantic Scholar"
		}

		results = append(results, normalizer.Build(models.RecordInput{
			Provider:  ProviderSemanticScholar,
			Source:    source,
			Title:     paper.Title,
			Summary:   paper.Abstract,
			URL:       paper.URL,
			Published: published,
			Content:   paper.Abstract,
			Extra:     map[string]any{"authors": authors},
		}))
	}

	return results, nil
}
