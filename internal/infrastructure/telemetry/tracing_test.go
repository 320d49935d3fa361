package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// setupTestTracer installs a recording tracer provider as the global provider
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"always", 1, "ParentBased{root:AlwaysOnSampler"},
		{"never", 0, "ParentBased{root:AlwaysOffSampler"},
		{"ratio", 0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, newSampler(tt.ratio).Description(), tt.want)
		})
	}
}

func TestStartServiceSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	ctx, span := StartServiceSpan(context.Background(), "reconciler", "sync_channel",
		WithAttribute(SpanAttrChannelID, int64(7)),
		WithAttribute(SpanAttrChannelType, "amazon"),
	)
	assert.NotEmpty(t, GetTraceID(ctx))
	SetAttributes(span, SpanAttrOrdersFetched, 3, 42, "ignored")
	AddEvent(span, "page_fetched", "page", 1)
	SetOK(span)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "reconciler.sync_channel", s.Name())
	assert.Equal(t, codes.Ok, s.Status().Code)

	v, ok := attrValue(s.Attributes(), SpanAttrChannelID)
	require.True(t, ok)
	assert.Equal(t, int64(7), v.AsInt64())
	v, ok = attrValue(s.Attributes(), SpanAttrOrdersFetched)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
	assert.Len(t, s.Attributes(), 3)

	require.Len(t, s.Events(), 1)
	assert.Equal(t, "page_fetched", s.Events()[0].Name)
}

func TestRecordError(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "failing")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestToAttribute(t *testing.T) {
	assert.Equal(t, attribute.STRING, toAttribute("k", "v").Value.Type())
	assert.Equal(t, attribute.INT64, toAttribute("k", 1).Value.Type())
	assert.Equal(t, attribute.BOOL, toAttribute("k", true).Value.Type())
	assert.Equal(t, attribute.FLOAT64, toAttribute("k", 1.5).Value.Type())
	assert.Equal(t, attribute.STRINGSLICE, toAttribute("k", []string{"a"}).Value.Type())
	assert.Equal(t, "{1 2}", toAttribute("k", struct{ A, B int }{1, 2}).Value.AsString())
}
