package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
)

// NewsSource searches a NewsAPI-compatible /everything endpoint.
type NewsSource struct {
	fetcher crawler.Fetcher
	log     *logger.Logger
	cfg     config.NewsConfig
}

type newsResponse struct {
	Articles []newsArticle `json:"articles"`
}

type newsArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// NewNewsSource creates the news adapter.
func NewNewsSource(cfg config.NewsConfig, f crawler.Fetcher, log *logger.Logger) *NewsSource {
	return &NewsSource{
		fetcher: f,
		log:     providerLogger(log, ProviderNews),
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *NewsSource) Name() string { return ProviderNews }

// Fetch returns the newest articles for query. Without an API key it makes no call.
func (s *NewsSource) Fetch(ctx context.Context, query string, limitHint int) ([]models.ContextRecord, error) {
	if s.cfg.APIKey == "" {
		s.log.Debug("news search skipped: no API key configured")
		return nil, nil
	}

	if query == "" {
		return nil, nil
	}

	pageSize := s.cfg.MaxResults
	if limitHint > 0 && limitHint < pageSize {
		pageSize = limitHint
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", s.cfg.Language)
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(pageSize))

	header := http.Header{}
	header.Set("X-Api-Key", s.cfg.APIKey)

	var payload newsResponse
	if err := crawler.GetJSON(ctx, s.fetcher, crawler.BuildURL(s.cfg.BaseURL, "/everything", params), header, &payload); err != nil {
		s.log.Warn("news retrieval failed", "error", err)
		return nil, nil
	}

	results := make([]models.ContextRecord, 0, len(payload.Articles))
	for _, article := range payload.Articles {
		source := article.Source.Name
		if source == "" {
			source = "News article"
		}

		results = append(results, normalizer.Build(models.RecordInput{
			Provider:  ProviderNews,
			Source:    source,
			Title:     article.Title,
			Summary:   article.Description,
			URL:       article.URL,
			Published: article.PublishedAt,
			Content:   article.Content,
			Extra:     map[string]any{"author": article.Author},
		}))
	}

	return results, nil
}
