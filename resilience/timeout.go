package resilience

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout is applied when TimeoutConfig.Timeout is not positive.
const DefaultTimeout = 30 * time.Second

// Func is a computation that produces a value.
type Func func(ctx context.Context) (any, error)

// TimeoutConfig configures the timeout guard.
type TimeoutConfig struct {
	// Timeout is the maximum duration of a computation.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds the running time of computations.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout guard.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Timeout{config: config}
}

type result struct {
	value any
	err   error
}

// Execute runs fn with a deadline.
//
// If the deadline passes first, Execute returns ErrTimeout without waiting
// for fn; fn observes the cancellation through its context and its late
// result is discarded. Cancellation of the parent context is returned as
// the context's error.
func (t *Timeout) Execute(ctx context.Context, fn Func) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout runs fn under a one-off timeout guard.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn Func) (any, error) {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, fn)
}
