// Package retry provides the capped, jittered backoff policy used when
// re-establishing long-lived connections.
package retry

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Policy describes an exponential backoff with an upper bound. The zero
// value is not usable; start from DefaultPolicy.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultPolicy backs off 1s -> 30s with a 1.5x growth factor.
var DefaultPolicy = Policy{
	Initial: 1 * time.Second,
	Max:     30 * time.Second,
	Factor:  1.5,
}

// Next returns the delay following current, grown by the policy factor,
// capped at Max, with up to 25% random jitter added to avoid thundering
// reconnects.
func (p Policy) Next(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * p.Factor)
	if backoff > p.Max {
		backoff = p.Max
	}
	if backoff < p.Initial {
		backoff = p.Initial
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		if jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// Sleep waits for d or until ctx is done, reporting which.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
