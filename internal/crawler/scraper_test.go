package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"freshctx/internal/config"
)

func newTestScraper(attempts int) *Scraper {
	r := config.Default().Retrieval
	r.Retry.MaxAttempts = attempts
	r.Retry.InitialDelayMs = 1
	r.Retry.MaxDelayMs = 1
	r.MaxBodyKb = 1

	s := NewScraperWithConfig(&r)
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	return s
}

func TestScraper_Get_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "freshctx/1.0" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}

		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("X-Api-Key = %q", r.Header.Get("X-Api-Key"))
		}

		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("X-Api-Key", "secret")

	body, err := newTestScraper(1).Get(context.Background(), srv.URL, header)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestScraper_Get_HeaderOverridesUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("User-Agent", "custom")

	body, err := newTestScraper(1).Get(context.Background(), srv.URL, header)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(body) != "custom" {
		t.Errorf("User-Agent seen by server = %q", body)
	}
}

func TestScraper_Get_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestScraper(3).Get(context.Background(), srv.URL, nil)
	if !IsNotFound(err) {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}

	if !errors.Is(err, ErrUnexpectedStatusCode) {
		t.Errorf("expected errors.Is ErrUnexpectedStatusCode, got %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestScraper_Get_RetriesTemporaryFailures(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestScraper(3).Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(body) != "ok" || calls.Load() != 3 {
		t.Errorf("body = %q after %d calls", body, calls.Load())
	}
}

func TestScraper_Get_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := newTestScraper(2).Get(context.Background(), srv.URL, nil)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestScraper_Get_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := newTestScraper(3).Get(ctx, srv.URL, nil); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_, _ = w.Write([]byte("{not json"))
			return
		}

		_, _ = w.Write([]byte(`{"name":"freshctx"}`))
	}))
	defer srv.Close()

	s := newTestScraper(1)

	var out struct {
		Name string `json:"name"`
	}
	if err := GetJSON(context.Background(), s, srv.URL+"/ok", nil, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if out.Name != "freshctx" {
		t.Errorf("Name = %q", out.Name)
	}

	if err := GetJSON(context.Background(), s, srv.URL+"/bad", nil, &out); err == nil {
		t.Error("expected JSON parse error")
	}
}

func TestBuildURL(t *testing.T) {
	params := url.Values{}
	params.Set("q", "large language models")
	params.Set("rows", "6")

	got := BuildURL("https://api.example.org", "/works", params)
	if got != "https://api.example.org/works?q=large+language+models&rows=6" {
		t.Errorf("BuildURL = %q", got)
	}

	if got := BuildURL("https://x.org", "/a", nil); got != "https://x.org/a" {
		t.Errorf("BuildURL without params = %q", got)
	}
}
