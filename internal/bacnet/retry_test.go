package bacnet

import (
	"testing"
	"time"
)

func TestRetryPolicyAttemptTimeouts(t *testing.T) {
	policy := DefaultRetryPolicy()

	// Four attempts: 6 s, then retries at 6/12/24 s.
	want := []time.Duration{
		6 * time.Second,
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
	}

	if policy.Attempts() != len(want) {
		t.Fatalf("Attempts() = %d, want %d", policy.Attempts(), len(want))
	}
	for attempt := 1; attempt <= len(want); attempt++ {
		if got := policy.AttemptTimeout(attempt); got != want[attempt-1] {
			t.Errorf("AttemptTimeout(%d) = %v, want %v", attempt, got, want[attempt-1])
		}
	}
}

func TestRetryPolicyWithoutBackoff(t *testing.T) {
	policy := RetryPolicy{
		BaseTimeout: 2 * time.Second,
		MaxRetries:  2,
	}
	for attempt := 1; attempt <= 3; attempt++ {
		if got := policy.AttemptTimeout(attempt); got != 2*time.Second {
			t.Errorf("AttemptTimeout(%d) = %v, want 2s", attempt, got)
		}
	}
}

func TestRetryPolicyMaxElapsed(t *testing.T) {
	policy := DefaultRetryPolicy()

	// 6 + 6 + 12 + 24 s of waiting plus 3 × 500 ms of inter-attempt delay.
	want := 48*time.Second + 1500*time.Millisecond
	if got := policy.MaxElapsed(); got != want {
		t.Errorf("MaxElapsed() = %v, want %v", got, want)
	}

	// The documented upper bound: base × (2^0+...+2^maxRetries) + retries × delay.
	bound := 6*time.Second*(1+2+4+8) + 3*500*time.Millisecond
	if got := policy.MaxElapsed(); got > bound {
		t.Errorf("MaxElapsed() = %v exceeds bound %v", got, bound)
	}
}

func TestRetryPolicyNegativeRetries(t *testing.T) {
	policy := RetryPolicy{BaseTimeout: time.Second, MaxRetries: -1}
	if got := policy.Attempts(); got != 1 {
		t.Errorf("Attempts() = %d, want 1", got)
	}
}
