package inference

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes when the breaker opens and how long it stays open.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32        // failures that trip the breaker
	OpenTimeout         time.Duration // how long to reject before probing
	HalfOpenRequests    uint32        // probes allowed while half-open
	Logger              *slog.Logger
}

// DefaultBreakerSettings trips after 5 straight failures and probes again
// after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "generator",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
		Logger:              slog.Default(),
	}
}

// Breaker guards a Provider with a circuit breaker so a dead model server
// fails fast instead of holding every chat request for the full timeout.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Provider, s BreakerSettings) *Breaker {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	logger := s.Logger.With("component", "inference.breaker")
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller hanging up says nothing about the model server.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Generate forwards to the wrapped provider unless the breaker is open.
func (b *Breaker) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*GenerateResponse), nil
}

// State reports the breaker state as "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Model returns the wrapped provider's model.
func (b *Breaker) Model() string { return b.next.Model() }

// Health reports an open breaker as unhealthy without touching the network.
func (b *Breaker) Health(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return WrapError("breaker", gobreaker.ErrOpenState)
	}
	return b.next.Health(ctx)
}

// Close closes the wrapped provider.
func (b *Breaker) Close() error { return b.next.Close() }

var _ Provider = (*Breaker)(nil)
