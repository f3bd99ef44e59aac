package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"alertbot/internal/models"
)

// Broker defines the interface for submitting alert-driven bracket orders.
type Broker interface {
	// RefreshAccessToken forces a token refresh regardless of lease state.
	RefreshAccessToken(ctx context.Context) error

	// SubmitBracketOrder submits the linked entry/stop order pair for an
	// alert and returns the broker's acknowledgment verbatim.
	SubmitBracketOrder(ctx context.Context, alert *models.TradeAlert, quantity int) (json.RawMessage, error)

	// TokenStatus reports the current access-token lease.
	TokenStatus() TokenStatus
}

// Ensure TradeStationAPI implements Broker at compile time.
var _ Broker = (*TradeStationAPI)(nil)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so a
// misbehaving broker API stops consuming alerts instead of failing each one
// slowly. Individual submissions are still never retried.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker, logger *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, logger *logrus.Logger, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	if logger == nil {
		logger = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// RefreshAccessToken wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) RefreshAccessToken(ctx context.Context) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.RefreshAccessToken(ctx)
	})
	return err
}

// SubmitBracketOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) SubmitBracketOrder(ctx context.Context, alert *models.TradeAlert, quantity int) (json.RawMessage, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (json.RawMessage, error) {
		return b.SubmitBracketOrder(ctx, alert, quantity)
	})
}

// TokenStatus reads lease state directly; it performs no network I/O and
// bypasses the breaker.
func (c *CircuitBreakerBroker) TokenStatus() TokenStatus {
	return c.broker.TokenStatus()
}
