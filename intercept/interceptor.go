package intercept

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/memo/cache"
	"github.com/jonwraymond/memo/observe"
	"github.com/jonwraymond/memo/resilience"
)

// Interceptor decides, per call, whether to bypass or consult the cache.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: results and errors of the wrapped function are returned
//   unchanged; failures are never cached.
type Interceptor struct {
	engine *cache.Engine
	table  *Table
	mw     *observe.Middleware

	mu     sync.Mutex
	guards map[string]*resilience.Guard
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithMiddleware wraps every call, cached or not, with telemetry.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(ic *Interceptor) {
		ic.mw = mw
	}
}

// New creates an interceptor over engine and table. A nil engine gets a
// fresh in-memory engine; a nil table registers nothing, so every call
// bypasses the cache.
func New(engine *cache.Engine, table *Table, opts ...Option) *Interceptor {
	if engine == nil {
		engine = cache.NewEngine()
	}
	if table == nil {
		table = NewTable()
	}
	ic := &Interceptor{
		engine: engine,
		table:  table,
		guards: make(map[string]*resilience.Guard),
	}
	for _, opt := range opts {
		opt(ic)
	}
	return ic
}

// Engine returns the underlying cache engine.
func (ic *Interceptor) Engine() *cache.Engine {
	return ic.engine
}

// Table returns the registration table.
func (ic *Interceptor) Table() *Table {
	return ic.table
}

// Call invokes fn for op on receiver with args.
//
// If op is not registered, fn runs every time. Otherwise the call is
// answered from the cache while the entry for (receiver, op, args) is
// fresh, and fn runs under the rule's guards on a miss.
func (ic *Interceptor) Call(ctx context.Context, receiver any, op string, args []any, fn cache.ComputeFunc) (any, error) {
	rule, registered := ic.table.Lookup(op)

	exec := func(ctx context.Context, _ observe.CallMeta, args []any) (any, error) {
		if !registered {
			return fn(ctx)
		}
		key := cache.NewKey(receiver, op, args...)
		compute := cache.ComputeFunc(ic.guard(op, rule).Wrap(resilience.Func(fn)))
		return ic.engine.Get(ctx, key, rule.TTL, compute)
	}

	if ic.mw == nil {
		return exec(ctx, observe.CallMeta{}, args)
	}
	meta := observe.CallMeta{
		Op:       op,
		Receiver: receiverType(receiver),
		Cached:   registered,
	}
	return ic.mw.Wrap(exec)(ctx, meta, args)
}

// guard returns the per-operation guard, so the concurrency limit is shared
// by all receivers of op.
func (ic *Interceptor) guard(op string, rule Rule) *resilience.Guard {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	g, ok := ic.guards[op]
	if !ok {
		g = resilience.NewGuard(
			resilience.WithBulkheadConfig(resilience.BulkheadConfig{
				MaxConcurrent: rule.MaxConcurrent,
				MaxWait:       rule.MaxWait,
			}),
			resilience.WithTimeout(rule.Timeout),
		)
		ic.guards[op] = g
	}
	return g
}

// Bulkheads returns the concurrency metrics of every operation that has a
// concurrency limit and has been called at least once.
func (ic *Interceptor) Bulkheads() map[string]resilience.BulkheadMetrics {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	out := make(map[string]resilience.BulkheadMetrics)
	for op, g := range ic.guards {
		if b := g.Bulkhead(); b != nil {
			out[op] = b.Metrics()
		}
	}
	return out
}

func receiverType(receiver any) string {
	if receiver == nil {
		return ""
	}
	return fmt.Sprintf("%T", receiver)
}
