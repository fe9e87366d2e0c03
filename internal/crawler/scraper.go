// Package crawler performs the HTTP requests behind every source adapter.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"freshctx/internal/config"
)

// Scraper errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrBodyTooLarge         = errors.New("response body exceeds limit")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrUnexpectedStatusCode, e.StatusCode, e.URL)
}

// Unwrap lets errors.Is match ErrUnexpectedStatusCode.
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatusCode
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var statusErr *StatusError

	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// Scraper fetches URLs with a config-driven retry policy.
type Scraper struct {
	client       *http.Client
	retryPolicy  config.RetryPolicy
	maxBodyBytes int64
	userAgent    string
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewScraperWithConfig creates a scraper from the retrieval settings.
func NewScraperWithConfig(r *config.RetrievalConfig) *Scraper {
	return &Scraper{
		client: &http.Client{
			Timeout: r.Retry.GetTimeout(),
		},
		retryPolicy:  r.Retry,
		maxBodyBytes: r.MaxBodyBytes(),
		userAgent:    r.UserAgent,
		sleep:        sleepContext,
	}
}

// Get fetches url and returns the body of a 2xx response.
// Transport errors and retryable statuses are retried up to MaxAttempts.
func (s *Scraper) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	body, _, _, err := s.GetWithMetrics(ctx, url, header)

	return body, err
}

// GetWithMetrics returns (body, statusCode, duration, error).
func (s *Scraper) GetWithMetrics(ctx context.Context, url string, header http.Header) ([]byte, int, time.Duration, error) {
	var lastErr error

	var lastStatusCode int

	totalDuration := time.Duration(0)
	maxAttempts := max(s.retryPolicy.MaxAttempts, 1)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.retryPolicy.GetRetryDelay(attempt)); err != nil {
				return nil, lastStatusCode, totalDuration, err
			}
		}

		startTime := time.Now()
		body, statusCode, err := s.do(ctx, url, header)
		totalDuration += time.Since(startTime)
		lastStatusCode = statusCode

		if err == nil {
			return body, statusCode, totalDuration, nil
		}

		lastErr = err

		if ctx.Err() != nil || errors.Is(err, ErrBodyTooLarge) {
			break
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !isRetryableStatus(statusErr.StatusCode) {
			break
		}
	}

	if maxAttempts > 1 {
		lastErr = fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
	}

	return nil, lastStatusCode, totalDuration, lastErr
}

func (s *Scraper) do(ctx context.Context, url string, header http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	for key, values := range header {
		req.Header.Del(key)

		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)

		return nil, resp.StatusCode, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	limit := s.maxBodyBytes
	if limit <= 0 {
		limit = 4 << 20
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > limit {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, limit)
	}

	return body, resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	// Retry on temporary failures
	switch statusCode {
	case http.StatusServiceUnavailable: // 503
		return true
	case http.StatusGatewayTimeout: // 504
		return true
	case http.StatusTooManyRequests: // 429
		return true
	case http.StatusRequestTimeout: // 408
		return true
	case http.StatusBadGateway: // 502
		return true
	}

	return false
}
