package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy bounds the retry loop. Backoff for attempt n is
// BaseDelay*n*n plus up to half of that as jitter.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps a server-provided Retry-After.
	MaxDelay time.Duration
}

// DefaultRetry is used by providers and channels unless overridden.
var DefaultRetry = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// StatusError is a non-2xx response that survived all retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether status is worth retrying.
func Retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// Do executes the request built by buildReq, retrying network errors, 5xx
// and 429 with jittered backoff. Other statuses are returned to the caller.
func Do(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), policy RetryPolicy, logger *slog.Logger) (*http.Response, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		lastErr   error
		nextDelay time.Duration
	)

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := nextDelay
			if delay <= 0 {
				base := policy.BaseDelay * time.Duration(attempt*attempt)
				delay = base + time.Duration(rand.Int64N(int64(base/2)+1))
			}
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		nextDelay = 0

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Warn("request failed", "url", req.URL.Redacted(), "err", err)
			continue
		}

		if Retryable(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			nextDelay = retryAfter(resp.Header.Get("Retry-After"), policy.MaxDelay)
			logger.Warn("server error", "status", resp.StatusCode, "url", req.URL.Redacted())
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", policy.MaxRetries, lastErr)
}

// retryAfter parses a Retry-After seconds value, capped at maxDelay.
func retryAfter(v string, maxDelay time.Duration) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}
