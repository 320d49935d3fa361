package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memoryExporter keeps exported records for inspection
type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		e.records = append(e.records, records[i].Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for i := range e.records {
		out = append(out, e.records[i].Body().AsString())
	}
	return out
}

func newTestLoggerProvider(t *testing.T) (*LoggerProvider, *memoryExporter) {
	t.Helper()

	exporter := &memoryExporter{}
	lp, err := newLoggerProvider(LogsConfig{Enabled: true, ServiceName: "marketsync-test"},
		zap.NewNop(), sdklog.NewSimpleProcessor(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })
	return lp, exporter
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(context.Background()))

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
}

func TestLoggerProvider_Bridge(t *testing.T) {
	lp, exporter := newTestLoggerProvider(t)
	core, logs := observer.New(zapcore.DebugLevel)

	logger := lp.Bridge(zap.New(core), zapcore.InfoLevel)
	logger.Debug("debug stays local")
	logger.Info("Channel sync completed", zap.Int64("channel_id", 3))
	logger.With(zap.String("channel_type", "amazon")).Warn("Failed to reconcile order")

	assert.Equal(t, 3, logs.Len(), "base core still receives every entry")
	assert.Equal(t, []string{"Channel sync completed", "Failed to reconcile order"}, exporter.bodies())

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	require.Len(t, exporter.records, 2)
	assert.Equal(t, log.SeverityWarn, exporter.records[1].Severity())

	var channelType string
	exporter.records[1].WalkAttributes(func(kv log.KeyValue) bool {
		if kv.Key == "channel_type" {
			channelType = kv.Value.AsString()
		}
		return true
	})
	assert.Equal(t, "amazon", channelType)
}

func TestLevelFilterCore(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	filtered := &levelFilterCore{Core: core, minLevel: zapcore.WarnLevel}

	assert.False(t, filtered.Enabled(zapcore.InfoLevel))
	assert.True(t, filtered.Enabled(zapcore.ErrorLevel))

	child, ok := filtered.With([]zapcore.Field{zap.String("k", "v")}).(*levelFilterCore)
	require.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, child.minLevel)
}
