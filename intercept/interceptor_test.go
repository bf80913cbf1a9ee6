package intercept

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/memo/cache"
	"github.com/jonwraymond/memo/observe"
	"github.com/jonwraymond/memo/resilience"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// dataService counts how often each query really runs.
type dataService struct {
	name  string
	calls atomic.Int64
}

func (s *dataService) compute(ctx context.Context) (any, error) {
	return s.calls.Add(1), nil
}

func newTestInterceptor(t *testing.T, clock *fakeClock, opts ...Option) *Interceptor {
	t.Helper()
	table := NewTable().
		MustRegister("QueryData", Rule{TTL: 5 * time.Second}).
		MustRegister("Slow", Rule{TTL: time.Minute, Timeout: 20 * time.Millisecond}).
		MustRegister("Narrow", Rule{TTL: time.Minute, MaxConcurrent: 1}).
		MustRegister("Queued", Rule{TTL: time.Minute, MaxConcurrent: 1, MaxWait: time.Second})
	return New(cache.NewEngine(cache.WithClock(clock.Now)), table, opts...)
}

func TestInterceptor_BypassUnregistered(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	svc := &dataService{name: "a"}

	for i := 1; i <= 3; i++ {
		v, err := ic.Call(context.Background(), svc, "QueryDataWithoutCache", []any{1}, svc.compute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), v)
	}
	assert.Equal(t, 0, ic.Engine().Store().Len(), "bypassed calls never touch the store")
}

func TestInterceptor_CachesRegistered(t *testing.T) {
	clock := newFakeClock()
	ic := newTestInterceptor(t, clock)
	svc := &dataService{name: "a"}
	ctx := context.Background()

	v1, err := ic.Call(ctx, svc, "QueryData", []any{1, "A"}, svc.compute)
	require.NoError(t, err)

	clock.Advance(time.Second)
	v2, err := ic.Call(ctx, svc, "QueryData", []any{1, "A"}, svc.compute)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	clock.Advance(5 * time.Second)
	v3, err := ic.Call(ctx, svc, "QueryData", []any{1, "A"}, svc.compute)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
	assert.Equal(t, int64(2), svc.calls.Load())
}

func TestInterceptor_KeyDiscrimination(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	a, b := &dataService{name: "a"}, &dataService{name: "a"}
	ctx := context.Background()

	_, _ = ic.Call(ctx, a, "QueryData", []any{1}, a.compute)
	_, _ = ic.Call(ctx, b, "QueryData", []any{1}, b.compute)
	_, _ = ic.Call(ctx, a, "QueryData", []any{2}, a.compute)

	assert.Equal(t, int64(2), a.calls.Load())
	assert.Equal(t, int64(1), b.calls.Load(), "distinct receivers never share entries")
	assert.Equal(t, 3, ic.Engine().Store().Len())
}

func TestInterceptor_FailureNotCached(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := ic.Call(ctx, nil, "QueryData", nil, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := ic.Call(ctx, nil, "QueryData", nil, func(context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestInterceptor_TimeoutNotCached(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	ctx := context.Background()

	_, err := ic.Call(ctx, nil, "Slow", nil, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, resilience.ErrTimeout)
	assert.Equal(t, 0, ic.Engine().Store().Len())

	v, err := ic.Call(ctx, nil, "Slow", nil, func(context.Context) (any, error) { return "fast", nil })
	require.NoError(t, err)
	assert.Equal(t, "fast", v)
}

func TestInterceptor_ConcurrencyLimitSharedAcrossReceivers(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := ic.Call(ctx, &dataService{name: "first"}, "Narrow", nil, func(context.Context) (any, error) {
			close(started)
			<-release
			return "first", nil
		})
		done <- err
	}()
	<-started

	_, err := ic.Call(ctx, &dataService{name: "second"}, "Narrow", nil, func(context.Context) (any, error) {
		return "second", nil
	})
	assert.ErrorIs(t, err, resilience.ErrBulkheadFull)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ic.Engine().Store().Len(), "rejected call is not cached")
}

func TestInterceptor_MaxWaitQueuesComputations(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := ic.Call(ctx, &dataService{name: "first"}, "Queued", nil, func(context.Context) (any, error) {
			close(started)
			<-release
			return "first", nil
		})
		done <- err
	}()
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	v, err := ic.Call(ctx, &dataService{name: "second"}, "Queued", nil, func(context.Context) (any, error) {
		return "second", nil
	})
	require.NoError(t, err, "second call waits for the slot instead of failing")
	assert.Equal(t, "second", v)
	require.NoError(t, <-done)

	m := ic.Bulkheads()["Queued"]
	assert.Equal(t, 1, m.MaxConcurrent)
	assert.Equal(t, 1, m.MaxActive)
	assert.Equal(t, 0, m.Active)
	assert.Zero(t, m.Rejected)
}

func TestInterceptor_Bulkheads(t *testing.T) {
	ic := newTestInterceptor(t, newFakeClock())
	ctx := context.Background()
	assert.Empty(t, ic.Bulkheads(), "guards are created on first call")

	svc := &dataService{}
	_, err := ic.Call(ctx, svc, "QueryData", nil, svc.compute)
	require.NoError(t, err)
	_, err = ic.Call(ctx, svc, "Narrow", nil, svc.compute)
	require.NoError(t, err)

	metrics := ic.Bulkheads()
	require.Len(t, metrics, 1, "only limited operations report")
	assert.Equal(t, 1, metrics["Narrow"].Available)
}

func TestInterceptor_NilDefaults(t *testing.T) {
	ic := New(nil, nil)
	require.NotNil(t, ic.Engine())
	require.NotNil(t, ic.Table())

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := ic.Call(context.Background(), nil, "op", nil, func(context.Context) (any, error) {
			calls++
			return nil, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls, "empty table bypasses every call")
}

func TestInterceptor_Middleware(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observe.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	mw := observe.NewMiddleware(observe.NewTracer(tp.Tracer("test")), metrics, observe.NopLogger())
	ic := newTestInterceptor(t, newFakeClock(), WithMiddleware(mw))
	svc := &dataService{name: "a"}
	ctx := context.Background()

	_, _ = ic.Call(ctx, svc, "QueryData", []any{1}, svc.compute)
	_, _ = ic.Call(ctx, svc, "QueryData", []any{1}, svc.compute)
	_, _ = ic.Call(ctx, svc, "Uncached", nil, svc.compute)

	ended := spans.Ended()
	require.Len(t, ended, 3, "cache hits are traced too")
	assert.Equal(t, "memo.call.QueryData", ended[0].Name())
	assert.Equal(t, "memo.call.Uncached", ended[2].Name())

	cachedAttr := func(s sdktrace.ReadOnlySpan) bool {
		for _, kv := range s.Attributes() {
			if kv.Key == "memo.cached" {
				return kv.Value.AsBool()
			}
		}
		require.Failf(t, "attribute missing", "memo.cached missing on %s", s.Name())
		return false
	}
	assert.True(t, cachedAttr(ended[0]))
	assert.False(t, cachedAttr(ended[2]))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "memo.call.total" {
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					total += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), svc.calls.Load())
}

func TestReceiverType(t *testing.T) {
	assert.Equal(t, "", receiverType(nil))
	assert.Equal(t, "*intercept.dataService", receiverType(&dataService{}))
}
