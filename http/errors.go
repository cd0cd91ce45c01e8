package http

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError indicates a non-2xx HTTP response.
type HTTPError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// URL is the requested URL
	URL string
	// RetryAfter is the server's Retry-After hint, if any
	RetryAfter time.Duration
	// Body is the response body
	Body []byte
}

// Error returns a string representation of the HTTP error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d for %s", e.StatusCode, e.URL)
}

// RetryDelay returns the Retry-After hint so retries wait at least that long.
func (e *HTTPError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// ErrRequestFailed indicates the request itself failed (network error).
var ErrRequestFailed = errors.New("http request failed")
