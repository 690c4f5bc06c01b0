package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"lexingest/internal/llm"
)

func TestIsRetryable(t *testing.T) {
	retryable := &llm.RetryableError{StatusCode: 529, Message: "overloaded"}
	if !IsRetryable(retryable) {
		t.Error("expected RetryableError to be retryable")
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", retryable)) {
		t.Error("expected wrapped RetryableError to be retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("expected plain error not to be retryable")
	}
	if IsRetryable(nil) {
		t.Error("expected nil not to be retryable")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base {
			t.Errorf("attempt %d: backoff %v below base %v", attempt, d, base)
		}
		if d > base+base/2 {
			t.Errorf("attempt %d: backoff %v exceeds base plus jitter %v", attempt, d, base+base/2)
		}
	}
}
