package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"alertbot/internal/models"
)

// flakyBroker fails every call until fixed.
type flakyBroker struct {
	failing bool
	calls   int
}

func (f *flakyBroker) RefreshAccessToken(ctx context.Context) error {
	f.calls++
	if f.failing {
		return &AuthFailure{Err: errors.New("boom")}
	}
	return nil
}

func (f *flakyBroker) SubmitBracketOrder(ctx context.Context, alert *models.TradeAlert, quantity int) (json.RawMessage, error) {
	f.calls++
	if f.failing {
		return nil, &OrderSubmissionFailure{Err: errors.New("boom")}
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *flakyBroker) TokenStatus() TokenStatus {
	return TokenStatus{}
}

func TestCircuitBreakerBroker_OpensAfterRepeatedFailures(t *testing.T) {
	inner := &flakyBroker{failing: true}
	cb := NewCircuitBreakerBrokerWithSettings(inner, quietLogger(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	for i := 0; i < 3; i++ {
		if _, err := cb.SubmitBracketOrder(context.Background(), testAlert(), 1); err == nil {
			t.Fatal("expected submission failure")
		}
	}
	if cb.breaker.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", cb.breaker.State())
	}

	callsBefore := inner.calls
	_, err := cb.SubmitBracketOrder(context.Background(), testAlert(), 1)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want gobreaker.ErrOpenState", err)
	}
	if inner.calls != callsBefore {
		t.Fatal("open breaker still reached the broker")
	}
}

func TestCircuitBreakerBroker_PassesThroughSuccess(t *testing.T) {
	inner := &flakyBroker{}
	cb := NewCircuitBreakerBroker(inner, quietLogger())

	ack, err := cb.SubmitBracketOrder(context.Background(), testAlert(), 1)
	if err != nil {
		t.Fatalf("SubmitBracketOrder error: %v", err)
	}
	if string(ack) != `{"ok":true}` {
		t.Fatalf("ack = %s, want passthrough", ack)
	}
	if err := cb.RefreshAccessToken(context.Background()); err != nil {
		t.Fatalf("RefreshAccessToken error: %v", err)
	}
}
