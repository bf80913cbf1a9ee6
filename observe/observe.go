package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/memo/observe/exporters"
)

// Config describes the telemetry of a process that memoizes calls.
type Config struct {
	ServiceName string
	Version     string

	// Output receives the stdout exporters and the log stream.
	// Default: exporters write to os.Stdout, logs to os.Stderr
	Output io.Writer

	Tracing TracingConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

// TracingConfig selects where call spans go.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	SamplePct float64 // 0.0-1.0
}

// MetricsConfig selects where cache and call metrics go.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none

	// Registerer receives the collector of the prometheus exporter, so the
	// cache counters can be served from a private registry.
	// Default: the global Prometheus registry
	Registerer prometheus.Registerer
}

// LoggingConfig configures the log stream.
type LoggingConfig struct {
	Enabled bool
	Level   string // debug|info|warn|error
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	if c.Tracing.Enabled {
		if err := oneOf(ErrInvalidTracingExporter, ValidTracingExporters, c.Tracing.Exporter); err != nil {
			return err
		}
		if c.Tracing.SamplePct < MinSamplePct || c.Tracing.SamplePct > MaxSamplePct {
			return fmt.Errorf("%w, got: %f", ErrInvalidSamplePct, c.Tracing.SamplePct)
		}
	}
	if c.Metrics.Enabled {
		if err := oneOf(ErrInvalidMetricsExporter, ValidMetricsExporters, c.Metrics.Exporter); err != nil {
			return err
		}
	}
	if c.Logging.Enabled {
		return oneOf(ErrInvalidLogLevel, ValidLogLevels, c.Logging.Level)
	}
	return nil
}

func oneOf(sentinel error, valid []string, got string) error {
	if slices.Contains(valid, got) {
		return nil
	}
	return fmt.Errorf("%w: %q", sentinel, got)
}

// Observer bundles the telemetry of memoized calls: the OTel primitives,
// a cache Recorder for the engine and a Middleware for the interceptor.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: Shutdown honors cancellation and deadlines.
// - Errors: Shutdown is idempotent and joins provider errors.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Recorder reports cache hits, misses and computations; pass it to
	// cache.WithRecorder.
	Recorder() *Recorder

	// Middleware traces and measures intercepted calls; pass it to
	// intercept.WithMiddleware.
	Middleware() *Middleware

	// Shutdown flushes and stops the tracer and meter providers.
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer     trace.Tracer
	meter      metric.Meter
	logger     Logger
	recorder   *Recorder
	middleware *Middleware

	mu       sync.Mutex
	shutdown []func(context.Context) error
}

// NewObserver sets up providers from cfg and builds the cache Recorder and
// call Middleware on top of them. Disabled subsystems are no-ops.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var expOpts []exporters.Option
	if cfg.Output != nil {
		expOpts = append(expOpts, exporters.WithWriter(cfg.Output))
	}
	if cfg.Metrics.Registerer != nil {
		expOpts = append(expOpts, exporters.WithRegisterer(cfg.Metrics.Registerer))
	}

	obs := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
		meter:  noop.NewMeterProvider().Meter("noop"),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing, res, expOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		otel.SetTracerProvider(tp)
		obs.tracer = tp.Tracer(cfg.ServiceName)
		obs.onShutdown("tracer", tp.Shutdown)
	}

	if cfg.Metrics.Enabled {
		mp, err := newMeterProvider(ctx, cfg.Metrics, res, expOpts)
		if err != nil {
			_ = obs.Shutdown(ctx)
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
		otel.SetMeterProvider(mp)
		obs.meter = mp.Meter(cfg.ServiceName)
		obs.onShutdown("meter", mp.Shutdown)
	}

	if cfg.Logging.Enabled {
		if cfg.Output != nil {
			obs.logger = NewLoggerWithWriter(cfg.Logging.Level, cfg.Output)
		} else {
			obs.logger = NewLogger(cfg.Logging.Level)
		}
	}

	if err := obs.instrument(); err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}
	return obs, nil
}

// instrument creates the cache and call instruments on the observer's meter.
func (o *observer) instrument() error {
	rec, err := NewRecorder(o.meter, o.logger)
	if err != nil {
		return fmt.Errorf("failed to create cache recorder: %w", err)
	}
	metrics, err := NewMetrics(o.meter)
	if err != nil {
		return fmt.Errorf("failed to create call metrics: %w", err)
	}
	o.recorder = rec
	o.middleware = NewMiddleware(NewTracer(o.tracer), metrics, o.logger)
	return nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource, opts []exporters.Option) (*sdktrace.TracerProvider, error) {
	exporter, err := exporters.NewTracingExporter(ctx, cfg.Exporter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplePct)),
		sdktrace.WithBatcher(exporter),
	), nil
}

func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= MaxSamplePct:
		return sdktrace.AlwaysSample()
	case pct <= MinSamplePct:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(pct)
	}
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource, opts []exporters.Option) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics reader: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}

func (o *observer) onShutdown(name string, fn func(context.Context) error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutdown = append(o.shutdown, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s shutdown: %w", name, err)
		}
		return nil
	})
}

func (o *observer) Tracer() trace.Tracer    { return o.tracer }
func (o *observer) Meter() metric.Meter     { return o.meter }
func (o *observer) Logger() Logger          { return o.logger }
func (o *observer) Recorder() *Recorder     { return o.recorder }
func (o *observer) Middleware() *Middleware { return o.middleware }

func (o *observer) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	fns := o.shutdown
	o.shutdown = nil
	o.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
