package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/memo/cache"
	"github.com/jonwraymond/memo/health"
	"github.com/jonwraymond/memo/intercept"
	"github.com/jonwraymond/memo/observe"
)

func linesWithPrefix(out, prefix string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix+" ") {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestRootCmd_Replay(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--pauses", "1ms,1ms", "--log-level", "error"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	cached := linesWithPrefix(out.String(), "cached")
	require.Len(t, cached, 3)
	assert.Equal(t, cached[0], cached[1])
	assert.Equal(t, cached[0], cached[2])

	uncached := linesWithPrefix(out.String(), "uncached")
	require.Len(t, uncached, 3)
	assert.NotEqual(t, uncached[0], uncached[1])
	assert.NotEqual(t, uncached[1], uncached[2])

	assert.Contains(t, out.String(), "queries=4 hits=2 misses=1 entries=1")
}

// TestRootCmd_TelemetryOffReplayOutput keeps stdout spans and logs on the
// error stream so replay lines stay parseable.
func TestRootCmd_TelemetryOffReplayOutput(t *testing.T) {
	var out, telemetry bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&telemetry)
	cmd.SetArgs([]string{"--pauses", "1ms", "--log-level", "debug", "--tracing-exporter", "stdout"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.Regexp(t, `^(cached|uncached|queries=)`, line)
	}
	assert.Contains(t, telemetry.String(), "memo.call.DataService.QueryData")
	assert.Contains(t, telemetry.String(), `"msg":"cache miss"`)
}

func TestRootCmd_ConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.yaml")
	// A 1ns TTL expires before the next query.
	require.NoError(t, os.WriteFile(path, []byte("operations:\n  DataService.QueryData:\n    ttl: 1ns\n"), 0o600))
	t.Setenv("MEMO_CONFIG", path)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--pauses", "1ms", "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	cached := linesWithPrefix(out.String(), "cached")
	require.Len(t, cached, 2)
	assert.NotEqual(t, cached[0], cached[1])
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("operations:\n  DataService.QueryData:\n    ttl: 0s\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--config", path, "--pauses", ""})
	err := cmd.Execute()
	require.ErrorIs(t, err, intercept.ErrInvalidTTL)
}

func TestRootCmd_InvalidLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--log-level", "loud", "--pauses", "0s"})
	require.ErrorIs(t, cmd.Execute(), observe.ErrInvalidLogLevel)
}

func TestFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("test-flag", "", "Test flag")

	require.NoError(t, cmd.Flags().Set("test-flag", "flag-value"))
	t.Setenv("MEMO_TEST", "env-value")
	assert.Equal(t, "flag-value", flagOrEnv(cmd, "test-flag", "MEMO_TEST", "default"))

	require.NoError(t, cmd.Flags().Set("test-flag", ""))
	assert.Equal(t, "env-value", flagOrEnv(cmd, "test-flag", "MEMO_TEST", "default"))

	assert.Equal(t, "default", flagOrEnv(cmd, "test-flag", "MEMO_TEST_UNSET", "default"))
}

func TestParsePauses(t *testing.T) {
	tests := []struct {
		in      string
		want    []time.Duration
		wantErr bool
	}{
		{"", nil, false},
		{"1s,3s", []time.Duration{time.Second, 3 * time.Second}, false},
		{" 500ms , 1m ", []time.Duration{500 * time.Millisecond, time.Minute}, false},
		{"1s,later", nil, true},
		{"-1s", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parsePauses(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadConfig_MetricsAddrForcesPrometheus(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Set("metrics-addr", ":9464"))
	require.NoError(t, cmd.Flags().Set("metrics-exporter", "stdout"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "prometheus", cfg.MetricsExporter)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, cfg.Pauses)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := observe.NewObserver(context.Background(), observe.Config{
		ServiceName: "memodemo-test",
		Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus", Registerer: reg},
	})
	require.NoError(t, err)
	defer obs.Shutdown(context.Background())

	engine := cache.NewEngine(cache.WithRecorder(obs.Recorder()))
	_, err = engine.Get(context.Background(), cache.NewKey(nil, OpQueryData, 1), time.Minute,
		func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)

	checks := health.NewAggregator()
	checks.Register(health.NewEngineChecker(engine, health.EngineCheckerConfig{MaxEntries: 1}))

	srv := httptest.NewServer(metricsHandler(reg, checks))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "memo_cache_misses")
	assert.Contains(t, string(body), "memo_compute_total")

	live, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	live.Body.Close()
	assert.Equal(t, http.StatusOK, live.StatusCode)

	detailed, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer detailed.Body.Close()
	var status health.Response
	require.NoError(t, json.NewDecoder(detailed.Body).Decode(&status))
	assert.Equal(t, http.StatusServiceUnavailable, detailed.StatusCode, "one entry reaches MaxEntries")
	assert.Equal(t, "unhealthy", status.Checks["cache"].Status)
}

func TestDataService_Identity(t *testing.T) {
	a := NewDataService()
	b := &DataService{id: a.id}
	c := NewDataService()

	ka := cache.NewKey(a, OpQueryData, 1)
	assert.True(t, ka.Equal(cache.NewKey(b, OpQueryData, 1)), "same ID shares entries")
	assert.False(t, ka.Equal(cache.NewKey(c, OpQueryData, 1)))
}
