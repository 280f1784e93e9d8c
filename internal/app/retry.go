/**
 * @description
 * This file implements the bounded-retry policy for outbound generation
 * dispatches. Transient failures (HTTP 5xx, transport errors, timeouts) are
 * retried with exponential backoff; permanent failures (HTTP 4xx) abort
 * immediately. The policy is a plain value so tests can shrink the backoff.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/proshoot/studio-service/pkg/modalclient"
)

// RetryPolicy bounds a retried operation. MaxAttempts counts every try
// including the first; Backoff returns the wait before attempt n (1-based).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy: 3 total attempts, 2^attempt seconds between them.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// isRetriable classifies a dispatch failure: 5xx responses and transport
// errors are worth retrying, 4xx responses are not.
func isRetriable(err error) bool {
	var statusErr *modalclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	// Transport-level failure (timeout, connection error).
	return true
}

// withRetry runs op under the policy. It returns the first permanent error,
// or the last transient error once attempts are exhausted. Context
// cancellation aborts between attempts.
func withRetry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetriable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := policy.Backoff(attempt)
		log.Printf("level=warn component=dispatcher msg=\"transient dispatch failure; backing off\" attempt=%d max_attempts=%d wait=%s err=%v", attempt, policy.MaxAttempts, wait, lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
