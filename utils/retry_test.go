package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Logger:      NewLogger(false),
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := testRetry(3).Do(context.Background(), "navigate", func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always fails")
	calls := 0
	err := testRetry(3).Do(context.Background(), "navigate", func() error {
		calls++
		return sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Errorf("final error should wrap the last failure, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := testRetry(5).Do(ctx, "navigate", func() error {
		calls++
		return errors.New("boom")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls after cancellation: got %d, want 1", calls)
	}
}
