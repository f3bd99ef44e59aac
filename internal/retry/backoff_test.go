package retry

import (
	"context"
	"testing"
	"time"
)

func TestPolicyNext_GrowsAndCaps(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 8 * time.Second, Factor: 2}

	current := p.Initial
	for i := 0; i < 10; i++ {
		next := p.Next(current)
		// Jitter adds at most 25% on top of the capped base.
		if next > p.Max+p.Max/4 {
			t.Fatalf("backoff %v exceeds cap %v (+jitter)", next, p.Max)
		}
		if next < p.Initial {
			t.Fatalf("backoff %v fell below initial %v", next, p.Initial)
		}
		current = next
	}
}

func TestPolicyNext_NeverBelowInitial(t *testing.T) {
	p := DefaultPolicy
	if got := p.Next(0); got < p.Initial {
		t.Fatalf("Next(0) = %v, want >= %v", got, p.Initial)
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
}

func TestSleep_Elapses(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep error: %v", err)
	}
}
