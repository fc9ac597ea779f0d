// Package breaker guards a completion backend with a circuit breaker so a
// failing generative API is not called on every search.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"pantrychef/internal/generation"
	"pantrychef/internal/metrics"
	"pantrychef/internal/recipe"
)

// Settings configures when the circuit opens and how long it stays open.
type Settings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Completer wraps a generation backend with a circuit breaker.
type Completer struct {
	next    generation.Completer
	cb      *gobreaker.CircuitBreaker[string]
	name    string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New wraps next. The circuit opens after the configured number of
// consecutive failures and half-opens again after OpenTimeout.
func New(name string, next generation.Completer, s Settings, logger *zap.Logger, m *metrics.Metrics) *Completer {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	logger = logger.Named("circuit-breaker")

	m.BreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		// A caller giving up is not a backend fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Completer{next: next, cb: cb, name: name, logger: logger, metrics: m}
}

// Complete forwards to the wrapped backend unless the circuit is open.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := c.cb.Execute(func() (string, error) {
		return c.next.Complete(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug("request rejected by open circuit", zap.String("name", c.name))
		return "", fmt.Errorf("%w: %s: %w", recipe.ErrGenerationUnavailable, c.name, err)
	}
	return out, err
}

// State reports the current breaker state.
func (c *Completer) State() gobreaker.State {
	return c.cb.State()
}
