package llm

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	// minRateLimitDelay is the shortest wait after a 429 without Retry-After.
	minRateLimitDelay = 5 * time.Second
)

// backoff computes waits between attempts: exponential from base, longer
// for rate limiting unless the server says how long to wait.
type backoff struct {
	retries int
	base    time.Duration
}

func newBackoff(cfg Config) backoff {
	b := backoff{retries: cfg.MaxRetries, base: cfg.RetryDelay}
	if b.retries <= 0 {
		b.retries = defaultMaxRetries
	}
	if b.base <= 0 {
		b.base = defaultRetryDelay
	}
	return b
}

// delay returns the wait before retry n (1-based). resp is the failed
// response, or nil after a transport error.
func (b backoff) delay(n int, resp *http.Response) time.Duration {
	step := time.Duration(1) << (n - 1)
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return b.base * step
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return max(minRateLimitDelay, b.base) * step
}

// retryable reports whether a status is worth another attempt.
func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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
