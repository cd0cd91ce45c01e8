package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// recordSleeps returns a Sleep func that records requested delays without waiting.
func recordSleeps(got *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*got = append(*got, d)
		return ctx.Err()
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration
	cfg := Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2.0,
		Sleep:          recordSleeps(&sleeps),
	}

	retries, err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
	if retries != 0 {
		t.Errorf("Do() retries = %d, want 0", retries)
	}
	if len(sleeps) != 0 {
		t.Errorf("Do() slept %d times, want 0", len(sleeps))
	}
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration
	permanentErr := errors.New("permanent")
	cfg := Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2.0,
		Sleep:          recordSleeps(&sleeps),
	}

	classifier := func(err error) bool {
		return !errors.Is(err, permanentErr)
	}

	retries, err := Do(context.Background(), cfg, classifier, func(ctx context.Context) error {
		attempts++
		return permanentErr
	})

	if err != permanentErr {
		t.Errorf("Do() returned error = %v, want %v unwrapped", err, permanentErr)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
	if retries != 0 || len(sleeps) != 0 {
		t.Errorf("Do() retries = %d, sleeps = %d, want 0 and 0", retries, len(sleeps))
	}
}

func TestDo_PermanentAfterTransient(t *testing.T) {
	permanentErr := errors.New("permanent")
	var sleeps []time.Duration
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Second, Multiplier: 2.0, Sleep: recordSleeps(&sleeps)}

	attempts := 0
	retries, err := Do(context.Background(), cfg, func(err error) bool { return err != permanentErr }, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return permanentErr
	})

	if err != permanentErr {
		t.Errorf("Do() error = %v, want %v", err, permanentErr)
	}
	if retries != 2 {
		t.Errorf("Do() retries = %d, want 2", retries)
	}
	if len(sleeps) != 2 {
		t.Errorf("Do() slept %d times, want 2", len(sleeps))
	}
}

func TestDo_RetryableError(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration
	tempErr := errors.New("temporary")
	cfg := Config{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		Multiplier:     2.0,
		Sleep:          recordSleeps(&sleeps),
	}

	retries, err := Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts <= 2 {
			return tempErr
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if retries != 2 {
		t.Errorf("Do() retries = %d, want 2", retries)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("Do() sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration
	tempErr := errors.New("temporary")
	maxRetries := 3
	cfg := Config{
		MaxRetries:     maxRetries,
		InitialBackoff: 5 * time.Millisecond,
		Multiplier:     2.0,
		Sleep:          recordSleeps(&sleeps),
	}

	retries, err := Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		return tempErr
	})

	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Do() error = %v, want *RetryableError", err)
	}
	if retryErr.Retries != maxRetries {
		t.Errorf("RetryableError.Retries = %d, want %d", retryErr.Retries, maxRetries)
	}
	if !errors.Is(err, tempErr) {
		t.Errorf("Do() error does not wrap %v", tempErr)
	}
	if attempts != maxRetries+1 {
		t.Errorf("Do() made %d attempts, want %d", attempts, maxRetries+1)
	}
	if retries != maxRetries {
		t.Errorf("Do() retries = %d, want %d", retries, maxRetries)
	}
	if len(sleeps) != maxRetries {
		t.Errorf("Do() slept %d times, want %d", len(sleeps), maxRetries)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	var sleeps []time.Duration
	cfg := Config{MaxRetries: 0, InitialBackoff: time.Second, Sleep: recordSleeps(&sleeps)}

	retries, err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		return errors.New("temporary")
	})

	if err == nil {
		t.Fatal("Do() returned nil error, want error")
	}
	if retries != 0 || len(sleeps) != 0 {
		t.Errorf("Do() retries = %d, sleeps = %d, want 0 and 0", retries, len(sleeps))
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	attempts := 0
	cfg := Config{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())

	_, err := Do(ctx, cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			cancel()
		}
		return errors.New("temporary")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
}

func TestConfig_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		attempt int
		want    time.Duration
	}{
		{"first retry", Config{InitialBackoff: 2 * time.Second, Multiplier: 2}, 0, 2 * time.Second},
		{"second retry", Config{InitialBackoff: 2 * time.Second, Multiplier: 2}, 1, 4 * time.Second},
		{"third retry", Config{InitialBackoff: 2 * time.Second, Multiplier: 2}, 2, 8 * time.Second},
		{"capped", Config{InitialBackoff: 2 * time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}, 2, 5 * time.Second},
		{"zero multiplier doubles", Config{InitialBackoff: time.Second}, 1, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("generic"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("DefaultConfig().MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 2*time.Second {
		t.Errorf("DefaultConfig().InitialBackoff = %v, want 2s", cfg.InitialBackoff)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("DefaultConfig().Multiplier = %f, want 2.0", cfg.Multiplier)
	}
}

func TestSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
}

type delayedError struct{ d time.Duration }

func (e delayedError) Error() string              { return "slow down" }
func (e delayedError) RetryDelay() time.Duration { return e.d }

func TestDo_RetryDelayRaisesBackoff(t *testing.T) {
	tests := []struct {
		name string
		hint time.Duration
		max  time.Duration
		want time.Duration
	}{
		{"hint above backoff", 3 * time.Second, 0, 3 * time.Second},
		{"hint below backoff", 10 * time.Millisecond, 0, time.Second},
		{"hint capped", time.Hour, 5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			cfg := Config{
				MaxRetries:     1,
				InitialBackoff: time.Second,
				MaxBackoff:     tt.max,
				Multiplier:     2,
				Sleep: func(ctx context.Context, d time.Duration) error {
					waits = append(waits, d)
					return nil
				},
			}
			calls := 0
			_, err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
				calls++
				if calls == 1 {
					return fmt.Errorf("request: %w", delayedError{tt.hint})
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if len(waits) != 1 || waits[0] != tt.want {
				t.Errorf("waits = %v, want [%v]", waits, tt.want)
			}
		})
	}
}
