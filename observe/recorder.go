package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/memo/cache"
)

// Recorder exports cache engine events as OpenTelemetry metrics and debug
// logs. It implements cache.Recorder.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: recording is best-effort and never affects cache behavior.
type Recorder struct {
	hits        metric.Int64Counter
	misses      metric.Int64Counter
	computes    metric.Int64Counter
	errors      metric.Int64Counter
	shared      metric.Int64Counter
	computeHist metric.Float64Histogram
	logger      Logger
}

// NewRecorder creates a cache recorder on the given meter. A nil logger
// disables event logging.
func NewRecorder(meter metric.Meter, logger Logger) (*Recorder, error) {
	if logger == nil {
		logger = NopLogger()
	}
	r := &Recorder{logger: logger}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&r.hits, "memo.cache.hits", "Lookups answered from a fresh entry", "{hit}"},
		{&r.misses, "memo.cache.misses", "Lookups that found no entry or an expired one", "{miss}"},
		{&r.computes, "memo.compute.total", "Computations run on a miss", "{call}"},
		{&r.errors, "memo.compute.errors", "Computations that failed and were not cached", "{error}"},
		{&r.shared, "memo.cache.shared", "Callers that received a coalesced result", "{call}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	hist, err := meter.Float64Histogram(
		"memo.compute.duration_ms",
		metric.WithDescription("Computation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	r.computeHist = hist

	return r, nil
}

func opAttr(key cache.Key) attribute.KeyValue {
	return attribute.String("memo.op", key.Op())
}

// Hit records a lookup answered from the store.
func (r *Recorder) Hit(ctx context.Context, key cache.Key) {
	r.hits.Add(ctx, 1, metric.WithAttributes(opAttr(key)))
	r.logger.Debug(ctx, "cache hit", Field{Key: "key", Value: key.String()})
}

// Miss records a lookup that requires a computation.
func (r *Recorder) Miss(ctx context.Context, key cache.Key, reason cache.MissReason) {
	r.misses.Add(ctx, 1, metric.WithAttributes(
		opAttr(key),
		attribute.String("memo.miss_reason", reason.String()),
	))
	r.logger.Debug(ctx, "cache miss",
		Field{Key: "key", Value: key.String()},
		Field{Key: "reason", Value: reason.String()},
	)
}

// Computed records a finished computation.
func (r *Recorder) Computed(ctx context.Context, key cache.Key, d time.Duration, err error) {
	opt := metric.WithAttributes(opAttr(key))
	r.computes.Add(ctx, 1, opt)
	r.computeHist.Record(ctx, durationMillis(d), opt)
	if err != nil {
		r.errors.Add(ctx, 1, opt)
		r.logger.Warn(ctx, "computation failed, result not cached",
			Field{Key: "key", Value: key.String()},
			Field{Key: "error", Value: err.Error()},
		)
	}
}

// Shared records a caller that received another caller's result.
func (r *Recorder) Shared(ctx context.Context, key cache.Key) {
	r.shared.Add(ctx, 1, metric.WithAttributes(opAttr(key)))
}

var _ cache.Recorder = (*Recorder)(nil)
