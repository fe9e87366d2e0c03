package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
)

// GitHubSource finds recently updated repositories and reports their latest release.
type GitHubSource struct {
	fetcher crawler.Fetcher
	log     *logger.Logger
	cfg     config.GitHubConfig
}

type githubSearchResponse struct {
	Items []githubRepository `json:"items"`
}

type githubRepository struct {
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type githubRelease struct {
	Name        string `json:"name"`
	TagName     string `json:"tag_name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
	CreatedAt   string `json:"created_at"`
}

// NewGitHubSource creates the release adapter.
func NewGitHubSource(cfg config.GitHubConfig, f crawler.Fetcher, log *logger.Logger) *GitHubSource {
	return &GitHubSource{
		fetcher: f,
		log:     providerLogger(log, ProviderGitHub),
		cfg:     cfg,
	}
}

// Name implements Source.
func (s *GitHubSource) Name() string { return ProviderGitHub }

func (s *GitHubSource) header() http.Header {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")

	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	return header
}

// Fetch searches repositories matching query and returns one record per repository
// that has a published release. Repositories without a release are skipped.
func (s *GitHubSource) Fetch(ctx context.Context, query string, _ int) ([]models.ContextRecord, error) {
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "updated")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(s.cfg.MaxRepos))

	header := s.header()

	var search githubSearchResponse
	if err := crawler.GetJSON(ctx, s.fetcher, crawler.BuildURL(s.cfg.BaseURL, "/search/repositories", params), header, &search); err != nil {
		s.log.Warn("repository search failed", "error", err)
		return nil, nil
	}

	repos := search.Items
	if s.cfg.MaxRepos > 0 && len(repos) > s.cfg.MaxRepos {
		repos = repos[:s.cfg.MaxRepos]
	}

	// slots keep the search order regardless of which lookup finishes first
	slots := make([]*models.ContextRecord, len(repos))

	var wg sync.WaitGroup

	for i := range repos {
		wg.Add(1)

		go func(index int, repo githubRepository) {
			defer wg.Done()

			record, ok := s.latestRelease(ctx, repo, header)
			if ok {
				slots[index] = &record
			}
		}(i, repos[i])
	}

	wg.Wait()

	var results []models.ContextRecord

	for _, record := range slots {
		if record != nil {
			results = append(results, *record)
		}
	}

	return results, nil
}

func (s *GitHubSource) latestRelease(ctx context.Context, repo githubRepository, header http.Header) (models.ContextRecord, bool) {
	owner := repo.Owner.Login
	name := repo.Name

	if owner == "" || name == "" {
		return models.ContextRecord{}, false
	}

	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + "/releases/latest"

	var release githubRelease
	if err := crawler.GetJSON(ctx, s.fetcher, crawler.BuildURL(s.cfg.BaseURL, path, nil), header, &release); err != nil {
		if crawler.IsNotFound(err) {
			s.log.Debug("repository has no release", "repo", repo.FullName)
		} else {
			s.log.Warn("release lookup failed", "repo", repo.FullName, "error", err)
		}

		return models.ContextRecord{}, false
	}

	title := release.Name
	if title == "" {
		title = repo.FullName
	}

	summary := release.Body
	if summary == "" {
		summary = repo.Description
	}

	link := release.HTMLURL
	if link == "" {
		link = repo.HTMLURL
	}

	published := release.PublishedAt
	if published == "" {
		published = release.CreatedAt
	}

	return normalizer.Build(models.RecordInput{
		Provider:  ProviderGitHub,
		Source:    repo.FullName,
		Title:     title,
		Summary:   summary,
		URL:       link,
		Published: published,
		Content:   release.Body,
		Extra:     map[string]any{"tag_name": release.TagName},
	}), true
}
