// Package sources holds one adapter per external provider. Every adapter turns a
// provider's API or feed format into models.ContextRecord values.
package sources

import (
	"context"
	"net/http"
	"time"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
)

// Provider identifiers stamped on records.
const (
	ProviderNews            = "newsapi"
	ProviderArxiv           = "arxiv"
	ProviderGitHub          = "github"
	ProviderSemanticScholar = "semantic_scholar"
	ProviderCrossref        = "crossref"
	ProviderProceedings     = "proceedings"
	ProviderRSS             = "rss"
)

// Source is one provider adapter.
//
// Transport failures are logged inside Fetch and reported as an empty result
// with a nil error. A returned error means the provider answered with a body
// the adapter could not interpret at all.
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string, limitHint int) ([]models.ContextRecord, error)
}

// FromConfig builds every enabled adapter, in a fixed order.
func FromConfig(cfg *config.Config, f crawler.Fetcher, log *logger.Logger) []Source {
	p := cfg.Providers
	feedHeader := FeedHeader(&cfg.Retrieval)

	var out []Source

	if p.News.Enabled {
		out = append(out, NewNewsSource(p.News, f, log))
	}

	if p.Arxiv.Enabled {
		out = append(out, NewArxivSource(p.Arxiv, f, log))
	}

	if p.GitHub.Enabled {
		out = append(out, NewGitHubSource(p.GitHub, f, log))
	}

	if p.SemanticScholar.Enabled {
		out = append(out, NewSemanticScholarSource(p.SemanticScholar, f, log))
	}

	if p.Crossref.Enabled {
		out = append(out, NewCrossrefSource(p.Crossref, f, log))
	}

	if p.Proceedings.Enabled {
		out = append(out, NewProceedingsSource(p.Proceedings, feedHeader, f, log))
	}

	if p.RSS.Enabled {
		out = append(out, NewRSSSource(p.RSS, feedHeader, f, log))
	}

	return out
}

// FeedHeader is the fixed User-Agent/Accept pair sent with feed requests.
func FeedHeader(r *config.RetrievalConfig) http.Header {
	header := http.Header{}
	header.Set("User-Agent", r.UserAgent)
	header.Set("Accept", r.FeedAccept)

	return header
}

// clock is embedded by adapters that apply an age cutoff.
type clock struct {
	now func() time.Time
}

func (c clock) Now() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}

	return c.now().UTC()
}

func providerLogger(log *logger.Logger, provider string) *logger.Logger {
	if log == nil {
		log = logger.Discard()
	}

	return log.With("provider", provider)
}
