// Package retry provides exponential backoff retry logic with optional jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries. Zero means no cap.
	MaxBackoff time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// JitterFraction is the fraction of backoff used for jitter (0.0-1.0).
	JitterFraction float64
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the download defaults: 3 retries starting at 2s, doubling.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		Multiplier:     2.0,
	}
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// IsRetryable is the default classifier. Context errors are never retried.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Delayer is implemented by errors that carry a server-provided minimum
// wait, such as an HTTP Retry-After header.
type Delayer interface {
	RetryDelay() time.Duration
}

// Backoff returns the delay before retry number attempt (0-based), without jitter.
func (c Config) Backoff(attempt int) time.Duration {
	mult := c.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := time.Duration(float64(c.InitialBackoff) * math.Pow(mult, float64(attempt)))
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// Do executes fn until it succeeds, the classifier rejects an error, or
// MaxRetries retries have been spent. It returns the number of retries
// performed alongside the final error.
//
// Exhausting retries yields a *RetryableError wrapping the last error.
// A rejected error is returned as-is. An error implementing Delayer raises
// the wait before the next attempt to its hint, capped by MaxBackoff.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) (int, error) {
	if classifier == nil {
		classifier = IsRetryable
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !classifier(err) {
			return attempt, err
		}
		if attempt >= cfg.MaxRetries {
			return attempt, &RetryableError{Err: err, Retries: attempt}
		}

		d := cfg.Backoff(attempt)
		d += jitter(d, cfg.JitterFraction)
		if hint := retryDelay(err); hint > d {
			d = hint
			if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
				d = cfg.MaxBackoff
			}
		}
		if err := sleep(ctx, d); err != nil {
			return attempt, err
		}
	}
}

func retryDelay(err error) time.Duration {
	var d Delayer
	if errors.As(err, &d) {
		return d.RetryDelay()
	}
	return 0
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jitter returns a random duration in range [-jitterFraction*d, +jitterFraction*d].
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return 0
	}
	jitterRange := float64(d) * fraction
	jitterValue := (rand.Float64() - 0.5) * 2 * jitterRange
	return time.Duration(jitterValue)
}

// RetryableError reports that retries were exhausted.
type RetryableError struct {
	Err     error
	Retries int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Retries, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
