package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

func newTestSyncMetrics(t *testing.T) (*SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewSyncMetrics(provider.Meter("test"), zap.NewNop())
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetricData(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// sumFor returns the int64 sum data point value matching attrs
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	m, ok := findMetricData(rm, name)
	require.True(t, ok, "metric %s should be recorded", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s should be an int64 sum", name)

	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	m, err := NewSyncMetrics(nil, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, "NewSyncMetrics: meter cannot be nil", err.Error())
}

func TestNewSyncMetrics_NoopMeter(t *testing.T) {
	m, err := NewSyncMetrics(noop.NewMeterProvider().Meter("test"), nil)
	require.NoError(t, err)

	// Should not panic
	ctx := context.Background()
	m.RecordPass(ctx, time.Second, 1, 0)
	m.RecordChannel(ctx, &marketplace.SyncRunResult{ChannelType: marketplace.ChannelTypeAmazon})
	m.RecordChannel(ctx, nil)
	m.RecordSkipped(ctx, "local")
}

func TestSyncMetrics_RecordChannel(t *testing.T) {
	m, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	m.RecordChannel(ctx, &marketplace.SyncRunResult{
		ChannelType:     marketplace.ChannelTypeBigCommerce,
		Success:         true,
		OrdersProcessed: 7,
		DurationMs:      1500,
	})
	m.RecordChannel(ctx, &marketplace.SyncRunResult{
		ChannelType:     marketplace.ChannelTypeBigCommerce,
		Success:         false,
		OrdersProcessed: 3,
		OrdersFailed:    2,
	})

	rm := collect(t, reader)
	bc := AttrChannelType.String("bigcommerce")

	assert.Equal(t, int64(1), sumFor(t, rm, "marketsync_channel_sync_total", bc, AttrResult.String("success")))
	assert.Equal(t, int64(1), sumFor(t, rm, "marketsync_channel_sync_total", bc, AttrResult.String("failure")))
	assert.Equal(t, int64(10), sumFor(t, rm, "marketsync_orders_processed_total", bc))
	assert.Equal(t, int64(2), sumFor(t, rm, "marketsync_orders_failed_total", bc))

	_, ok := findMetricData(rm, "marketsync_channel_sync_duration_seconds")
	assert.True(t, ok)
}

func TestSyncMetrics_RecordPass(t *testing.T) {
	m, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	m.RecordPass(ctx, 90*time.Second, 2, 1)
	m.RecordPass(ctx, 30*time.Second, 3, 0)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "marketsync_sync_pass_total"))

	gauge, ok := findMetricData(rm, "marketsync_sync_pass_channels_failed")
	require.True(t, ok)
	data := gauge.Data.(metricdata.Gauge[int64])
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, int64(0), data.DataPoints[0].Value)

	hist, ok := findMetricData(rm, "marketsync_sync_pass_duration_seconds")
	require.True(t, ok)
	h := hist.Data.(metricdata.Histogram[float64])
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(2), h.DataPoints[0].Count)
	assert.InDelta(t, 120.0, h.DataPoints[0].Sum, 0.001)
}

func TestSyncMetrics_RecordSkipped(t *testing.T) {
	m, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	m.RecordSkipped(ctx, "local")
	m.RecordSkipped(ctx, "local")
	m.RecordSkipped(ctx, "lease")

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "marketsync_sync_skipped_total", AttrSkipReason.String("local")))
	assert.Equal(t, int64(1), sumFor(t, rm, "marketsync_sync_skipped_total", AttrSkipReason.String("lease")))
}
