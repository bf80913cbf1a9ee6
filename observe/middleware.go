package observe

import (
	"context"
	"time"
)

// ExecuteFunc is the signature of an intercepted call that Middleware wraps.
type ExecuteFunc func(ctx context.Context, call CallMeta, args []any) (any, error)

// Middleware wraps intercepted calls with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: the span is propagated to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and propagated unchanged.
//   - Ownership: arguments and results are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced with
// no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps an ExecuteFunc with tracing, metrics and logging.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, call CallMeta, args []any) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, call)
		start := time.Now()

		result, err := fn(ctx, call, args)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordCall(ctx, call, duration, err)

		logger := m.logger.WithCall(call)
		fields := []Field{
			{Key: "duration_ms", Value: durationMillis(duration)},
			{Key: "args", Value: args},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Error(ctx, "call failed", fields...)
		} else {
			logger.Debug(ctx, "call completed", fields...)
		}

		return result, err
	}
}
