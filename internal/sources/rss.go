package sources

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/cases"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
)

// RSSSource filters a configured list of topic feeds by query.
type RSSSource struct {
	fetcher crawler.Fetcher
	log     *logger.Logger
	header  http.Header
	cfg     config.RSSConfig
}

// NewRSSSource creates the topic feed adapter.
func NewRSSSource(cfg config.RSSConfig, header http.Header, f crawler.Fetcher, log *logger.Logger) *RSSSource {
	return &RSSSource{
		fetcher: f,
		log:     providerLogger(log, ProviderRSS),
		header:  header,
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *RSSSource) Name() string { return ProviderRSS }

// Fetch keeps records whose title or summary contains query, ignoring case.
// Feeds are scanned in configuration order until MaxArticles matches are found.
func (s *RSSSource) Fetch(ctx context.Context, query string, _ int) ([]models.ContextRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" || len(s.cfg.Feeds) == 0 {
		return nil, nil
	}

	fold := cases.Fold()
	needle := fold.String(query)

	var results []models.ContextRecord

	for i, fetched := range fetchFeeds(ctx, s.fetcher, s.cfg.Feeds, s.header) {
		if len(results) >= s.cfg.MaxArticles {
			break
		}

		log := s.log.With("url", s.cfg.Feeds[i])

		if fetched.err != nil {
			log.Warn("feed fetch failed", "error", fetched.err)
			continue
		}

		feed, warning, err := parseFeed(fetched.body)
		if err != nil {
			log.Warn("skipping unparsable feed", "error", err)
			continue
		}

		if warning != nil {
			log.Debug("feed parsed with warnings", "warning", warning)
		}

		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = "RSS Feed"
		}

		for _, item := range feed.Items {
			if len(results) >= s.cfg.MaxArticles {
				break
			}

			summary := item.Description
			if strings.TrimSpace(summary) == "" {
				summary = item.Content
			}

			extra := map[string]any{}
			if item.Author != nil {
				extra["author"] = item.Author.Name
			}

			record := normalizer.Build(models.RecordInput{
				Provider:  ProviderRSS,
				Source:    source,
				Title:     item.Title,
				Summary:   summary,
				URL:       item.Link,
				Published: itemTimestamp(item),
				Content:   item.Content,
				Extra:     extra,
			})

			// match the record as returned: stripped summary, placeholder title
			if !strings.Contains(fold.String(record.Title+" "+record.Summary), needle) {
				continue
			}

			results = append(results, record)
		}
	}

	return results, nil
}
