package sources

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
)

// ProceedingsSource reads a fixed set of conference proceedings feeds.
type ProceedingsSource struct {
	clock
	fetcher crawler.Fetcher
	log     *logger.Logger
	header  http.Header
	cfg     config.ProceedingsConfig
}

// NewProceedingsSource creates the proceedings adapter.
func NewProceedingsSource(cfg config.ProceedingsConfig, header http.Header, f crawler.Fetcher, log *logger.Logger) *ProceedingsSource {
	return &ProceedingsSource{
		fetcher: f,
		log:     providerLogger(log, ProviderProceedings),
		header:  header,
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *ProceedingsSource) Name() string { return ProviderProceedings }

// Fetch ignores the query. Feeds that fail to download or parse are skipped.
func (s *ProceedingsSource) Fetch(ctx context.Context, _ string, _ int) ([]models.ContextRecord, error) {
	urls := make([]string, len(s.cfg.Feeds))
	for i, feed := range s.cfg.Feeds {
		urls[i] = feed.URL
	}

	now := s.Now()

	var results []models.ContextRecord

	for i, fetched := range fetchFeeds(ctx, s.fetcher, urls, s.header) {
		feedCfg := s.cfg.Feeds[i]
		log := s.log.With("feed", feedCfg.Provider, "url", feedCfg.URL)

		if fetched.err != nil {
			log.Warn("proceedings feed fetch failed", "error", fetched.err)
			continue
		}

		feed, warning, err := parseFeed(fetched.body)
		if err != nil {
			log.Warn("skipping unparsable proceedings feed", "error", err)
			continue
		}

		if warning != nil {
			log.Debug("proceedings feed parsed with warnings", "warning", warning)
		}

		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = strings.ToUpper(feedCfg.Provider)
		}

		for _, item := range feed.Items {
			published := itemTimestamp(item)

			t, _ := normalizer.Coerce(published)
			if normalizer.IsStale(t, now, s.cfg.MaxAgeDays) {
				continue
			}

			results = append(results, normalizer.Build(models.RecordInput{
				Provider:  feedCfg.Provider,
				Source:    source,
				Title:     item.Title,
				Summary:   item.Description,
				URL:       item.Link,
				Published: published,
				Content:   item.Content,
				Extra:     map[string]any{"authors": authorNames(item.Authors)},
			}))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PublishedTime().After(results[j].PublishedTime())
	})

	if s.cfg.MaxItems > 0 && len(results) > s.cfg.MaxItems {
		results = results[:s.cfg.MaxItems]
	}

	return results, nil
}

func authorNames(people []*gofeed.Person) []string {
	var names []string

	for _, p := range people {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			names = append(names, strings.TrimSpace(p.Name))
		}
	}

	return names
}
