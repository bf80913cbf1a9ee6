package resilience

import (
	"context"
	"time"
)

// Guard composes a bulkhead and a timeout around a computation.
// A zero Guard runs computations unguarded.
type Guard struct {
	bulkhead *Bulkhead
	timeout  *Timeout
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// NewGuard creates a guard from the given options.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithBulkhead limits concurrency through b.
func WithBulkhead(b *Bulkhead) GuardOption {
	return func(g *Guard) {
		g.bulkhead = b
	}
}

// WithMaxConcurrent limits concurrency to n with no waiting.
// A non-positive n leaves concurrency unlimited.
func WithMaxConcurrent(n int) GuardOption {
	return WithBulkheadConfig(BulkheadConfig{MaxConcurrent: n})
}

// WithBulkheadConfig limits concurrency to config.MaxConcurrent, waiting up
// to config.MaxWait for a slot. A non-positive MaxConcurrent leaves
// concurrency unlimited.
func WithBulkheadConfig(config BulkheadConfig) GuardOption {
	return func(g *Guard) {
		if config.MaxConcurrent > 0 {
			g.bulkhead = NewBulkhead(config)
		}
	}
}

// WithTimeout bounds each computation to d.
// A non-positive d leaves computations unbounded.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = NewTimeout(TimeoutConfig{Timeout: d})
		}
	}
}

// Execute runs fn through the configured guards.
//
// The bulkhead slot is taken before the deadline starts, so time spent
// waiting for a slot does not count against the timeout.
func (g *Guard) Execute(ctx context.Context, fn Func) (any, error) {
	return g.Wrap(fn)(ctx)
}

// Wrap returns fn wrapped in the configured guards.
func (g *Guard) Wrap(fn Func) Func {
	if g == nil {
		return fn
	}
	run := fn

	if g.timeout != nil {
		inner := run
		run = func(ctx context.Context) (any, error) {
			return g.timeout.Execute(ctx, inner)
		}
	}

	if g.bulkhead != nil {
		inner := run
		run = func(ctx context.Context) (any, error) {
			return g.bulkhead.Execute(ctx, inner)
		}
	}

	return run
}

// Bulkhead returns the configured bulkhead, or nil.
func (g *Guard) Bulkhead() *Bulkhead {
	return g.bulkhead
}

// Timeout returns the configured timeout, or nil.
func (g *Guard) Timeout() *Timeout {
	return g.timeout
}
