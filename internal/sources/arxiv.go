package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
	"freshctx/pkg/utils"
)

// ArxivSource queries the arXiv Atom API for the newest submissions.
type ArxivSource struct {
	fetcher crawler.Fetcher
	log     *logger.Logger
	cfg     config.ArxivConfig
}

// arxivFeed is the Atom document returned by the arXiv API.
type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Updated   string        `xml:"updated"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// NewArxivSource creates the preprint adapter.
func NewArxivSource(cfg config.ArxivConfig, f crawler.Fetcher, log *logger.Logger) *ArxivSource {
	return &ArxivSource{
		fetcher: f,
		log:     providerLogger(log, ProviderArxiv),
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *ArxivSource) Name() string { return ProviderArxiv }

// Fetch returns recent papers for query sorted by submission date.
// A body that is not valid Atom is returned as an error.
func (s *ArxivSource) Fetch(ctx context.Context, query string, _ int) ([]models.ContextRecord, error) {
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(s.cfg.MaxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	body, err := s.fetcher.Get(ctx, crawler.BuildURL(s.cfg.BaseURL, "", params), nil)
	if err != nil {
		s.log.Warn("arXiv retrieval failed", "error", err)
		return nil, nil
	}

	return parseArxivFeed(body)
}

func parseArxivFeed(body []byte) ([]models.ContextRecord, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arXiv feed: %w", err)
	}

	results := make([]models.ContextRecord, 0, len(feed.Entries))

	for _, entry := range feed.Entries {
		link := ""

		for _, l := range entry.Links {
			if l.Type == "text/html" {
				link = l.Href
				break
			}
		}

		var authors []string

		for _, author := range entry.Authors {
			if name := strings.TrimSpace(author.Name); name != "" {
				authors = append(authors, name)
			}
		}

		published := entry.Updated
		if strings.TrimSpace(published) == "" {
			published = entry.Published
		}

		summary := strings.TrimSpace(entry.Summary)

		results = append(results, normalizer.Build(models.RecordInput{
			Provider:  ProviderArxiv,
			Source:    "arXiv",
			Title:     utils.NormalizeWhitespace(entry.Title),
			Summary:   summary,
			URL:       link,
			Published: published,
			Content:   summary,
			Extra:     map[string]any{"authors": authors},
		}))
	}

	return results, nil
}
