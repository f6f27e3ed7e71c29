// Package request provides an HTTP client with exponential-backoff retries
// for the external provider ports (GeoProvider, LLM).
package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"wayfarer/pkg/config"
)

// StatusError is returned for non-2xx responses that are not retried away.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ErrRetriesExhausted wraps the last transient failure after all attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Client handles HTTP requests with retry and per-call timeout.
type Client struct {
	httpClient *http.Client
	retries    int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New creates a Client from request configuration.
func New(cfg config.RequestConfig) *Client {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 5
	}
	base := time.Duration(cfg.Backoff.BaseDelay)
	if base <= 0 {
		base = time.Second
	}
	maxDelay := time.Duration(cfg.Backoff.MaxDelay)
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		baseDelay:  base,
		maxDelay:   maxDelay,
	}
}

// Get performs a GET request with retries.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, headers)
}

// Post performs a POST request with retries.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body, headers)
}

// Transient reports whether a status code should be retried:
// rate limiting (429), overload (529), and server errors.
func Transient(status int) bool {
	return status == 429 || status == 529 || (status >= 500 && status < 600)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Connection errors and timeouts are transient.
			slog.Warn("request failed, retrying", "url", url, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if Transient(resp.StatusCode) {
			slog.Warn("transient status, retrying", "status", resp.StatusCode, "url", url, "attempt", attempt+1)
			lastErr = &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return data, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// sleep waits baseDelay·2^(attempt-1) plus 10% jitter, capped at maxDelay.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	delay += time.Duration(rand.Float64() * 0.1 * float64(delay))

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
