package llm

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	openaisdk "github.com/openai/openai-go"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	maxDelay           = 10 * time.Second
)

// RetryPolicy caps attempts and spaces them with exponential backoff plus
// full jitter. It applies only to transient failures; schema or parse
// failures must not be run through it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	return p
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := p.BaseDelay << attempt
	if backoff > maxDelay {
		backoff = maxDelay
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}

// Retry runs op until it succeeds, fails non-transiently, or exhausts the
// attempt budget. The last error is returned unwrapped so callers can
// classify it.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	p := policy.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.delay(attempt - 1)):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// IsTransient reports whether an error is worth retrying: timeouts, rate
// limiting, and upstream 5xx. Malformed output and validation failures are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 408, apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		}
	}
	return false
}
