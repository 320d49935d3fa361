package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracedRouter(t *testing.T, cfg TracingConfig) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	cfg.TracerProvider = tp

	r := gin.New()
	r.Use(RequestID())
	r.Use(Tracing(cfg)...)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/marketplace/sync/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, recorder
}

func TestTracing_CreatesServerSpan(t *testing.T) {
	r, recorder := setupTracedRouter(t, TracingConfig{Enabled: true, ServiceName: "marketsync"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/sync/status", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/marketplace/sync/status", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), w.Header().Get(TraceIDHeader))

	var requestID string
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == RequestIDKey {
			requestID = kv.Value.AsString()
		}
	}
	assert.Equal(t, "req-123", requestID)
}

func TestTracing_SkipsConfiguredPaths(t *testing.T) {
	r, recorder := setupTracedRouter(t, TracingConfig{
		Enabled:     true,
		ServiceName: "marketsync",
		SkipPaths:   []string{"/health"},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.Ended())
	assert.Empty(t, w.Header().Get(TraceIDHeader))
}

func TestTracing_Disabled(t *testing.T) {
	r, recorder := setupTracedRouter(t, TracingConfig{Enabled: false})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/sync/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.Ended())
}
