package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
)

// CrossrefSource searches the Crossref works API.
type CrossrefSource struct {
	clock
	fetcher crawler.Fetcher
	log     *logger.Logger
	cfg     config.CrossrefConfig
}

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	DOI             string        `json:"DOI"`
	URL             string        `json:"URL"`
	Title           []string      `json:"title"`
	Abstract        string        `json:"abstract"`
	ContainerTitle  []string      `json:"container-title"`
	PublishedOnline *crossrefDate `json:"published-online"`
	PublishedPrint  *crossrefDate `json:"published-print"`
	Issued          *crossrefDate `json:"issued"`
	Created         *crossrefDate `json:"created"`
}

// crossrefDate carries nullable parts, e.g. {"date-parts": [[2024, 5]]} or [[null]].
type crossrefDate struct {
	DateParts [][]*int `json:"date-parts"`
}

func (d *crossrefDate) time() (time.Time, bool) {
	if d == nil || len(d.DateParts) == 0 {
		return time.Time{}, false
	}

	var parts []int

	for _, p := range d.DateParts[0] {
		if p == nil {
			break
		}

		parts = append(parts, *p)
	}

	return normalizer.FromDateParts(parts)
}

// published returns the first usable date in Crossref's precedence order.
func (w crossrefWork) published() (time.Time, bool) {
	for _, d := range []*crossrefDate{w.PublishedOnline, w.PublishedPrint, w.Issued, w.Created} {
		if t, ok := d.time(); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

// NewCrossrefSource creates the bibliographic adapter.
func NewCrossrefSource(cfg config.CrossrefConfig, f crawler.Fetcher, log *logger.Logger) *CrossrefSource {
	return &CrossrefSource{
		fetcher: f,
		log:     providerLogger(log, ProviderCrossref),
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *CrossrefSource) Name() string { return ProviderCrossref }

// Fetch asks Crossref for works published since now minus MaxAgeDays and
// re-applies the same cutoff locally.
func (s *CrossrefSource) Fetch(ctx context.Context, query string, _ int) ([]models.ContextRecord, error) {
	if query == "" {
		return nil, nil
	}

	now := s.Now()
	from := now.AddDate(0, 0, -s.cfg.MaxAgeDays)

	params := url.Values{}
	params.Set("query", query)
	params.Set("filter", "from-pub-date:"+from.Format("2006-01-02"))
	params.Set("sort", "published")
	params.Set("order", "desc")
	params.Set("rows", strconv.Itoa(s.cfg.MaxResults*2))

	var payload crossrefResponse
	if err := crawler.GetJSON(ctx, s.fetcher, crawler.BuildURL(s.cfg.BaseURL, "/works", params), nil, &payload); err != nil {
		s.log.Warn("works search failed", "error", err)
		return nil, nil
	}

	var results []models.ContextRecord

	for _, work := range payload.Message.Items {
		if len(results) >= s.cfg.MaxResults {
			break
		}

		var published any

		t, ok := work.published()
		if ok {
			if normalizer.IsStale(t, now, s.cfg.MaxAgeDays) {
				continue
			}

			published = t
		}

		title := ""
		if len(work.Title) > 0 {
			title = work.Title[0]
		}

		source := "Crossref"
		if len(work.ContainerTitle) > 0 && work.ContainerTitle[0] != "" {
			source = work.ContainerTitle[0]
		}

		link := work.URL
		if link == "" && work.DOI != "" {
			link = "https://doi.org/" + work.DOI
		}

		results = append(results, normalizer.Build(models.RecordInput{
			Provider:  ProviderCrossref,
			Source:    source,
			Title:     title,
			Summary:   work.Abstract,
			URL:       link,
			Published: published,
			Content:   work.Abstract,
			Extra:     map[string]any{"doi": work.DOI},
		}))
	}

	return results, nil
}
