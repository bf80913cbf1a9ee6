package observe

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jonwraymond/memo/cache"
)

func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard).WithCall(CallMeta{Op: "QueryData"})
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "call completed", Field{Key: "duration_ms", Value: 1.5})
	}
}

func BenchmarkLogger_Filtered(b *testing.B) {
	logger := NewLoggerWithWriter("error", io.Discard)
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "cache hit", Field{Key: "key", Value: "op#00"})
	}
}

func BenchmarkMiddleware_Wrap(b *testing.B) {
	_, mp := newTestMeter()
	metrics, _ := NewMetrics(mp.Meter("bench"))
	mw := NewMiddleware(newNoopTracer(), metrics, NopLogger())
	fn := mw.Wrap(func(ctx context.Context, call CallMeta, args []any) (any, error) {
		return nil, nil
	})
	meta := CallMeta{Op: "QueryData", Cached: true}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = fn(ctx, meta, nil)
	}
}

func BenchmarkRecorder_Hit(b *testing.B) {
	_, mp := newTestMeter()
	rec, _ := NewRecorder(mp.Meter("bench"), nil)
	engine := cache.NewEngine(cache.WithRecorder(rec))
	ctx := context.Background()
	k := cache.NewKey(nil, "op", 1)
	compute := func(context.Context) (any, error) { return 1, nil }
	_, _ = engine.Get(ctx, k, time.Hour, compute)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Get(ctx, k, time.Hour, compute)
	}
}
