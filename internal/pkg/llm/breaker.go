package llm

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker stops calling a failing backend for a cool-down period.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker opens after maxFailures consecutive failures and half-opens
// after timeout.
func NewBreaker(name string, timeout time.Duration, maxFailures uint32) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &Breaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", b.breaker.Name(), err)
	}
	return nil
}

// State reports the current breaker state, e.g. "closed" or "open".
func (b *Breaker) State() string {
	if b == nil {
		return gobreaker.StateClosed.String()
	}
	return b.breaker.State().String()
}
