package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader exposes the trace ID so operators can find the trace of a failed trigger
const TraceIDHeader = "X-Trace-ID"

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// TracerProvider overrides the global provider (tests)
	TracerProvider trace.TracerProvider
	// SkipPaths are route patterns that never get a span (health checks)
	SkipPaths []string
}

// Tracing returns the otelgin middleware followed by a handler that tags the
// live server span with the request ID. Register it after RequestID.
func Tracing(cfg TracingConfig) []gin.HandlerFunc {
	if !cfg.Enabled {
		return []gin.HandlerFunc{func(c *gin.Context) { c.Next() }}
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	opts := []otelgin.Option{
		// request metrics come from HTTPMetrics
		otelgin.WithMeterProvider(noop.NewMeterProvider()),
		otelgin.WithGinFilter(func(c *gin.Context) bool {
			_, skipped := skip[c.FullPath()]
			return !skipped
		}),
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}

	return []gin.HandlerFunc{
		otelgin.Middleware(cfg.ServiceName, opts...),
		enrichSpan,
	}
}

func enrichSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String(RequestIDKey, requestID))
		}
	}
	if traceID := span.SpanContext().TraceID(); traceID.IsValid() {
		c.Writer.Header().Set(TraceIDHeader, traceID.String())
	}
	c.Next()
}
