package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/proshoot/studio-service/pkg/modalclient"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), instantRetryPolicy(3), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &modalclient.StatusError{StatusCode: 502, Body: "bad gateway"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_PermanentErrorStopsImmediately(t *testing.T) {
	attempts := 0
	permanent := &modalclient.StatusError{StatusCode: 422, Body: "unprocessable"}
	err := withRetry(context.Background(), instantRetryPolicy(3), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	transient := errors.New("connection reset")
	err := withRetry(context.Background(), instantRetryPolicy(4), func(ctx context.Context) error {
		attempts++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected the last transient error back, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
}

func TestWithRetry_CancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     func(int) time.Duration { return 50 * time.Millisecond },
	}
	err := withRetry(ctx, policy, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", attempts)
	}
}
