// Command memodemo replays a data service whose QueryData results are
// memoized for five seconds while QueryDataWithoutCache always runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"

	"github.com/jonwraymond/memo/cache"
	"github.com/jonwraymond/memo/health"
	"github.com/jonwraymond/memo/intercept"
	"github.com/jonwraymond/memo/observe"
)

var version = "dev"

// maxEntries is the cache size reported unhealthy on /health.
const maxEntries = 100_000

// config is the resolved command configuration.
type config struct {
	TablePath       string
	LogLevel        string
	MetricsExporter string
	TracingExporter string
	MetricsAddr     string
	Pauses          []time.Duration
}

// flagOrEnv returns the flag value if set, else the environment variable,
// else def.
func flagOrEnv(cmd *cobra.Command, flagName, envName, def string) string {
	if v, _ := cmd.Flags().GetString(flagName); v != "" {
		return v
	}
	if v, ok := os.LookupEnv(envName); ok {
		return v
	}
	return def
}

func parsePauses(s string) ([]time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		d, err := str2duration.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid pause %q: %w", part, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid pause %q: negative", part)
		}
		out = append(out, d)
	}
	return out, nil
}

func loadConfig(cmd *cobra.Command) (config, error) {
	pauses, err := parsePauses(flagOrEnv(cmd, "pauses", "MEMO_PAUSES", "1s,3s"))
	if err != nil {
		return config{}, err
	}
	cfg := config{
		TablePath:       flagOrEnv(cmd, "config", "MEMO_CONFIG", ""),
		LogLevel:        flagOrEnv(cmd, "log-level", "MEMO_LOG_LEVEL", "info"),
		MetricsExporter: flagOrEnv(cmd, "metrics-exporter", "MEMO_METRICS_EXPORTER", "none"),
		TracingExporter: flagOrEnv(cmd, "tracing-exporter", "MEMO_TRACING_EXPORTER", "none"),
		MetricsAddr:     flagOrEnv(cmd, "metrics-addr", "MEMO_METRICS_ADDR", ""),
		Pauses:          pauses,
	}
	if cfg.MetricsAddr != "" {
		cfg.MetricsExporter = "prometheus"
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memodemo",
		Short:         "Replay cached and uncached queries against a demo data service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "YAML registration table (env MEMO_CONFIG); built-in table if empty")
	flags.String("log-level", "", "debug|info|warn|error (env MEMO_LOG_LEVEL, default info)")
	flags.String("metrics-exporter", "", "none|stdout|otlp|prometheus (env MEMO_METRICS_EXPORTER, default none)")
	flags.String("tracing-exporter", "", "none|stdout|otlp|jaeger (env MEMO_TRACING_EXPORTER, default none)")
	flags.String("metrics-addr", "", "serve Prometheus /metrics on this address (env MEMO_METRICS_ADDR)")
	flags.String("pauses", "", "comma separated pauses between queries (env MEMO_PAUSES, default 1s,3s)")
	return cmd
}

func defaultTable() *intercept.Table {
	return intercept.NewTable().MustRegister(OpQueryData, intercept.Rule{
		TTL:           5 * time.Second,
		MaxConcurrent: 4,
		MaxWait:       time.Second,
	})
}

// run replays the queries to out. Logs and stdout exporters write to
// telemetry so they never interleave with the replay.
func run(ctx context.Context, cfg config, out, telemetry io.Writer) error {
	table := defaultTable()
	if cfg.TablePath != "" {
		t, err := intercept.LoadTableFile(cfg.TablePath)
		if err != nil {
			return err
		}
		table = t
	}

	registry := prometheus.NewRegistry()
	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "memodemo",
		Version:     version,
		Output:      telemetry,
		Tracing: observe.TracingConfig{
			Enabled:   cfg.TracingExporter != "none",
			Exporter:  cfg.TracingExporter,
			SamplePct: 1.0,
		},
		Metrics: observe.MetricsConfig{
			Enabled:    cfg.MetricsExporter != "none",
			Exporter:   cfg.MetricsExporter,
			Registerer: registry,
		},
		Logging: observe.LoggingConfig{Enabled: true, Level: cfg.LogLevel},
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			obs.Logger().Warn(shutdownCtx, "telemetry shutdown failed", observe.Field{Key: "error", Value: err.Error()})
		}
	}()

	engine := cache.NewEngine(
		cache.WithStore(cache.NewShardedStore(0)),
		cache.WithRecorder(obs.Recorder()),
	)
	ic := intercept.New(engine, table, intercept.WithMiddleware(obs.Middleware()))

	checks := health.NewAggregator()
	checks.Register(health.NewEngineChecker(engine, health.EngineCheckerConfig{MaxEntries: maxEntries}))
	checks.Register(health.NewBulkheadChecker(ic.Bulkheads))

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(registry, checks),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				obs.Logger().Error(ctx, "metrics server failed", observe.Field{Key: "error", Value: err.Error()})
			}
		}()
		defer srv.Close()
		obs.Logger().Info(ctx, "serving metrics", observe.Field{Key: "addr", Value: cfg.MetricsAddr})
	}

	svc := NewDataService()
	client := newDataServiceClient(ic, svc)

	if err := replay(ctx, out, "cached", client.QueryData, cfg.Pauses); err != nil {
		return err
	}
	if err := replay(ctx, out, "uncached", client.QueryDataWithoutCache, cfg.Pauses); err != nil {
		return err
	}

	s := engine.Stats()
	fmt.Fprintf(out, "queries=%d hits=%d misses=%d entries=%d\n", svc.Queries(), s.Hits, s.Misses, s.Entries)
	return nil
}

// replay calls query once, then once more after each pause.
func replay(ctx context.Context, out io.Writer, label string, query func(context.Context, int) ([]any, error), pauses []time.Duration) error {
	for i := 0; i <= len(pauses); i++ {
		if i > 0 {
			if err := sleep(ctx, pauses[i-1]); err != nil {
				return err
			}
		}
		row, err := query(ctx, 1)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %v\n", label, row)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func metricsHandler(reg *prometheus.Registry, checks *health.Aggregator) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	health.RegisterHandlers(mux, checks)
	return mux
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memodemo:", err)
		os.Exit(1)
	}
}
