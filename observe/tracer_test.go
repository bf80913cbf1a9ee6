package observe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer() (*tracetest.SpanRecorder, Tracer) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return rec, NewTracer(tp.Tracer("test"))
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCallMeta_SpanName(t *testing.T) {
	meta := CallMeta{Op: "DataService.QueryData"}
	assert.Equal(t, "memo.call.DataService.QueryData", meta.SpanName())
}

func TestTracer_SpanAttributes(t *testing.T) {
	rec, tracer := newTestTracer()

	_, span := tracer.StartSpan(context.Background(), CallMeta{
		Op:       "QueryData",
		Receiver: "*main.DataService",
		Cached:   true,
	})
	tracer.EndSpan(span, nil)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]

	assert.Equal(t, "memo.call.QueryData", s.Name())
	assert.Equal(t, codes.Ok, s.Status().Code)

	tests := []struct {
		key  string
		want attribute.Value
	}{
		{"memo.op", attribute.StringValue("QueryData")},
		{"memo.receiver", attribute.StringValue("*main.DataService")},
		{"memo.cached", attribute.BoolValue(true)},
		{"memo.error", attribute.BoolValue(false)},
	}
	for _, tc := range tests {
		got, ok := spanAttr(s, tc.key)
		if assert.True(t, ok, "attribute %s missing", tc.key) {
			assert.Equal(t, tc.want.Emit(), got.Emit(), tc.key)
		}
	}
}

func TestTracer_EndSpanWithError(t *testing.T) {
	rec, tracer := newTestTracer()

	_, span := tracer.StartSpan(context.Background(), CallMeta{Op: "Lookup"})
	tracer.EndSpan(span, errors.New("backend down"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "backend down", s.Status().Description)

	v, ok := spanAttr(s, "memo.error")
	require.True(t, ok)
	assert.True(t, v.AsBool())
	assert.NotEmpty(t, s.Events(), "expected the error to be recorded as an event")
}
