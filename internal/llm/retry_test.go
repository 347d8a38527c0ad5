package llm

import (
	"testing"
	"time"
)

func TestBackoff_Bounded(t *testing.T) {
	tests := []struct {
		attempt int
		lo      time.Duration
		hi      time.Duration
	}{
		{-1, time.Second, 1500 * time.Millisecond},
		{0, time.Second, 1500 * time.Millisecond},
		{2, 4 * time.Second, 6 * time.Second},
		{5, 30 * time.Second, 45 * time.Second},
		{34, 30 * time.Second, 45 * time.Second},
		{64, 30 * time.Second, 45 * time.Second},
		{1000, 30 * time.Second, 45 * time.Second},
	}
	for _, tc := range tests {
		for range 20 {
			d := Backoff(tc.attempt)
			if d < tc.lo || d >= tc.hi {
				t.Fatalf("attempt %d: backoff %s outside [%s, %s)", tc.attempt, d, tc.lo, tc.hi)
			}
		}
	}
}

func TestNewClient_CapsRetries(t *testing.T) {
	c := NewClient(slowProvider{}, Options{MaxRetries: 1 << 20})
	if c.maxRetries != MaxRetries {
		t.Errorf("expected retries capped at %d, got %d", MaxRetries, c.maxRetries)
	}
}
