package sources

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"freshctx/internal/crawler"
)

// mockFetcher serves canned bodies keyed by host+path. Unknown keys answer 404.
type mockFetcher struct {
	mu       sync.Mutex
	routes   map[string]mockRoute
	requests []mockRequest
}

type mockRoute struct {
	body string
	err  error
}

type mockRequest struct {
	url    *url.URL
	header http.Header
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{routes: make(map[string]mockRoute)}
}

func (m *mockFetcher) handle(key, body string) *mockFetcher {
	m.routes[key] = mockRoute{body: body}
	return m
}

func (m *mockFetcher) fail(key string, err error) *mockFetcher {
	m.routes[key] = mockRoute{err: err}
	return m
}

func (m *mockFetcher) Get(_ context.Context, rawURL string, header http.Header) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, mockRequest{url: u, header: header.Clone()})
	route, ok := m.routes[u.Host+u.Path]
	m.mu.Unlock()

	if !ok {
		return nil, &crawler.StatusError{URL: rawURL, StatusCode: http.StatusNotFound}
	}

	if route.err != nil {
		return nil, route.err
	}

	return []byte(route.body), nil
}

func (m *mockFetcher) requestTo(key string) (mockRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.requests {
		if r.url.Host+r.url.Path == key {
			return r, true
		}
	}

	return mockRequest{}, false
}

func (m *mockFetcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}
