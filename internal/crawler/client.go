package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Fetcher is the HTTP surface the source adapters depend on.
type Fetcher interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// Ensure Scraper implements Fetcher.
var _ Fetcher = (*Scraper)(nil)

// GetJSON fetches url and decodes the JSON body into v.
func GetJSON(ctx context.Context, f Fetcher, url string, header http.Header, v any) error {
	body, err := f.Get(ctx, url, header)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON from %s: %w", url, err)
	}

	return nil
}

// BuildURL joins base and path and encodes params as the query string.
func BuildURL(base, path string, params url.Values) string {
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	return u
}
