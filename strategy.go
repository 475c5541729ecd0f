package h402

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Strategy is one way of building a payment. Supported is a cheap capability
// probe; Attempt does the work.
type Strategy[T any] struct {
	Name      string
	Supported func(ctx context.Context) bool
	Attempt   func(ctx context.Context) (T, error)
}

// StrategyChain tries strategies in order and returns the first success
type StrategyChain[T any] struct {
	Strategies []Strategy[T]
	// MissingCapability is the error message used when no strategy is supported
	MissingCapability string
	Logger            *slog.Logger
}

// Run executes the chain. If every supported strategy fails, the failures are
// joined in order. If none is supported, the error wraps ErrMissingCapability.
func (c StrategyChain[T]) Run(ctx context.Context) (T, error) {
	var zero T
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var failures []error
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if s.Supported != nil && !s.Supported(ctx) {
			logger.Debug("payment strategy not supported", "strategy", s.Name)
			continue
		}
		result, err := s.Attempt(ctx)
		if err == nil {
			return result, nil
		}
		logger.Debug("payment strategy failed, falling back", "strategy", s.Name, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", s.Name, err))
	}

	if len(failures) == 0 {
		return zero, MissingCapabilityError(c.MissingCapability)
	}
	return zero, fmt.Errorf("all payment strategies failed: %w", errors.Join(failures...))
}
