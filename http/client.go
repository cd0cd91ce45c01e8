// Package http provides the outbound HTTP client used for feed and
// thumbnail downloads, with retry logic and SSRF-safe dialing.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"

	"ytaudio/internal/retry"
)

// Client wraps an HTTP client with retry logic and bounded response bodies.
type Client struct {
	base   *http.Client
	config *Config
}

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout time.Duration

	// Retry configuration
	Retry retry.Config

	// User agent for HTTP requests
	UserAgent string

	// MaxBodySize caps the bytes read from a response body.
	MaxBodySize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Retry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
		UserAgent:   "ytaudio/1.0",
		MaxBodySize: 20 << 20,
	}
}

// New creates a client whose dialer refuses private, loopback and
// link-local addresses and only connects to ports 80 and 443.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	safeCfg := safeurl.GetConfigBuilder().
		SetTimeout(cfg.Timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &Client{
		base:   safeurl.Client(safeCfg).Client,
		config: cfg,
	}
}

// NewWithHTTPClient creates a client on top of an existing *http.Client.
func NewWithHTTPClient(base *http.Client, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{base: base, config: cfg}
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with retry logic. Non-2xx responses are
// returned as *HTTPError; only 5xx and 429 are retried.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var out *Response

	_, err := retry.Do(ctx, c.config.Retry, isRetryableHTTPError, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &permanentError{err}
		}
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		resp, err := c.base.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize()))
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{
				StatusCode: resp.StatusCode,
				URL:        url,
				RetryAfter: parseRetryAfter(resp.Header),
				Body:       body,
			}
		}

		out = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
		return nil
	})
	if err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			return nil, perm.err
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) maxBodySize() int64 {
	if c.config.MaxBodySize <= 0 {
		return DefaultConfig().MaxBodySize
	}
	return c.config.MaxBodySize
}

// permanentError marks request construction failures as final.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func isRetryableHTTPError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ShouldRetry(httpErr.StatusCode)
	}
	return true
}

// ShouldRetry reports whether a response status is worth retrying.
func ShouldRetry(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// parseRetryAfter extracts the Retry-After header value.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}
	return 0
}
