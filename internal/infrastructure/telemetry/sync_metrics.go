package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
)

// SyncMetrics records marketplace sync pass and channel measurements
type SyncMetrics struct {
	logger *zap.Logger

	passTotal           *Counter
	passDuration        *Histogram
	passChannelsFailed  *Gauge
	channelSyncTotal    *Counter
	channelSyncDuration *Histogram
	ordersProcessed     *Counter
	ordersFailed        *Counter
	skippedTotal        *Counter
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter, logger *zap.Logger) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{logger: logger}

	var err error
	if m.passTotal, err = NewCounter(meter,
		"marketsync_sync_pass_total",
		"Total number of completed sync passes",
		"{passes}",
	); err != nil {
		return nil, err
	}
	if m.passDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "marketsync_sync_pass_duration_seconds",
		Description: "Duration of a full sync pass over all active channels",
		Unit:        "s",
		Boundaries:  PassDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.passChannelsFailed, err = NewGauge(meter,
		"marketsync_sync_pass_channels_failed",
		"Number of channels that failed in the most recent pass",
		"{channels}",
	); err != nil {
		return nil, err
	}
	if m.channelSyncTotal, err = NewCounter(meter,
		"marketsync_channel_sync_total",
		"Total number of channel syncs by result",
		"{syncs}",
	); err != nil {
		return nil, err
	}
	if m.channelSyncDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "marketsync_channel_sync_duration_seconds",
		Description: "Duration of one channel's fetch, normalize and upsert",
		Unit:        "s",
		Boundaries:  ChannelSyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.ordersProcessed, err = NewCounter(meter,
		"marketsync_orders_processed_total",
		"Total number of orders reconciled into the store",
		"{orders}",
	); err != nil {
		return nil, err
	}
	if m.ordersFailed, err = NewCounter(meter,
		"marketsync_orders_failed_total",
		"Total number of orders that failed normalization or upsert",
		"{orders}",
	); err != nil {
		return nil, err
	}
	if m.skippedTotal, err = NewCounter(meter,
		"marketsync_sync_skipped_total",
		"Total number of sync requests dropped because a pass was already running",
		"{passes}",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPass records a finished pass
func (m *SyncMetrics) RecordPass(ctx context.Context, duration time.Duration, channelsSucceeded, channelsFailed int) {
	m.passTotal.Inc(ctx)
	m.passDuration.RecordDuration(ctx, duration)
	m.passChannelsFailed.Record(ctx, int64(channelsFailed))

	m.logger.Debug("Recorded sync pass metrics",
		zap.Duration("duration", duration),
		zap.Int("channels_succeeded", channelsSucceeded),
		zap.Int("channels_failed", channelsFailed),
	)
}

// RecordChannel records one channel's sync result
func (m *SyncMetrics) RecordChannel(ctx context.Context, result *marketplace.SyncRunResult) {
	if result == nil {
		return
	}
	channelType := AttrChannelType.String(result.ChannelType.String())
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}

	m.channelSyncTotal.Inc(ctx, channelType, AttrResult.String(outcome))
	m.channelSyncDuration.RecordDuration(ctx, time.Duration(result.DurationMs)*time.Millisecond, channelType)
	if result.OrdersProcessed > 0 {
		m.ordersProcessed.Add(ctx, int64(result.OrdersProcessed), channelType)
	}
	if result.OrdersFailed > 0 {
		m.ordersFailed.Add(ctx, int64(result.OrdersFailed), channelType)
	}
}

// RecordSkipped records a dropped sync request
func (m *SyncMetrics) RecordSkipped(ctx context.Context, reason string) {
	m.skippedTotal.Inc(ctx, AttrSkipReason.String(reason))
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

var _ scheduler.SyncMetrics = (*SyncMetrics)(nil)
