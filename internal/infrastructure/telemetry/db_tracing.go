package telemetry

import (
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "marketsync:query_start"

// DBTracingConfig holds configuration for SQL tracing.
type DBTracingConfig struct {
	Enabled            bool
	DBSystem           string        // db.name attribute (default: "postgresql")
	SlowQueryThreshold time.Duration // Spans slower than this get db.slow_query=true
	LogFullSQL         bool          // Keep bound values in db.statement (never in production)
	TracerProvider     trace.TracerProvider
}

// DefaultDBTracingConfig returns secure defaults: disabled, query values masked.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		DBSystem:           "postgresql",
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

type callbackRegistrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// RegisterDBTracing installs the otelgorm plugin and a slow query marker on db.
// Order and channel queries issued during a sync pass become children of the
// reconciler span through the statement context.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(cfg.DBSystem),
		otelgorm.WithoutMetrics(),
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("register otelgorm plugin: %w", err)
	}
	if err := registerSlowQueryCallbacks(db, cfg.SlowQueryThreshold); err != nil {
		return fmt.Errorf("register slow query callbacks: %w", err)
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

// registerSlowQueryCallbacks times every statement and annotates the otelgorm
// span before otelgorm's own after hook ends it.
func registerSlowQueryCallbacks(db *gorm.DB, threshold time.Duration) error {
	cb := db.Callback()
	hooks := []struct {
		before callbackRegistrar
		after  callbackRegistrar
		name   string
	}{
		{cb.Create().Before("gorm:create"), cb.Create().After("gorm:create").Before("otel:after:create"), "create"},
		{cb.Query().Before("gorm:query"), cb.Query().After("gorm:query").Before("otel:after:select"), "query"},
		{cb.Update().Before("gorm:update"), cb.Update().After("gorm:update").Before("otel:after:update"), "update"},
		{cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete").Before("otel:after:delete"), "delete"},
		{cb.Row().Before("gorm:row"), cb.Row().After("gorm:row").Before("otel:after:row"), "row"},
		{cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw").Before("otel:after:raw"), "raw"},
	}

	after := slowQueryCallback(threshold)
	for _, h := range hooks {
		if err := h.before.Register("marketsync:timing_before_"+h.name, markQueryStart); err != nil {
			return err
		}
		if err := h.after.Register("marketsync:timing_after_"+h.name, after); err != nil {
			return err
		}
	}
	return nil
}

func markQueryStart(tx *gorm.DB) {
	tx.InstanceSet(queryStartKey, time.Now())
}

func slowQueryCallback(threshold time.Duration) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Statement.Context == nil {
			return
		}
		span := trace.SpanFromContext(tx.Statement.Context)
		if !span.IsRecording() {
			return
		}

		v, ok := tx.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		if elapsed := time.Since(start); elapsed > threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			AddEvent(span, "slow_query_warning",
				"duration_ms", elapsed.Milliseconds(),
				"threshold_ms", threshold.Milliseconds(),
			)
		}
	}
}
