package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

const (
	// SyncInProgressMessage is the manual trigger message returned while a pass is running
	SyncInProgressMessage = "Sync already in progress"

	tracerName = "marketsync"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// ChannelSyncer runs the fetch, normalize and upsert pipeline for one channel
type ChannelSyncer interface {
	SyncChannel(ctx context.Context, channel *marketplace.Channel, client marketplace.MarketplaceClient) *marketplace.SyncRunResult
}

// SyncLease is an optional cross-instance single-flight guard.
// TryAcquire reports false when another instance holds the lease.
// Extend pushes the expiry of a lease this holder owns back by TTL and
// reports false when the lease was lost.
type SyncLease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	TTL() time.Duration
}

// SyncMetrics records sync pass measurements
type SyncMetrics interface {
	RecordPass(ctx context.Context, duration time.Duration, channelsSucceeded, channelsFailed int)
	RecordChannel(ctx context.Context, result *marketplace.SyncRunResult)
	RecordSkipped(ctx context.Context, reason string)
}

type noopSyncMetrics struct{}

func (noopSyncMetrics) RecordPass(context.Context, time.Duration, int, int)         {}
func (noopSyncMetrics) RecordChannel(context.Context, *marketplace.SyncRunResult) {}
func (noopSyncMetrics) RecordSkipped(context.Context, string)                     {}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// MarketplaceSyncSchedulerConfig holds configuration for the marketplace sync scheduler
type MarketplaceSyncSchedulerConfig struct {
	// Enabled determines if the periodic loop is started; manual triggers work either way
	Enabled bool

	// Interval between scheduled passes
	Interval time.Duration

	// ChannelTimeout bounds one channel's sync; 0 disables the bound
	ChannelTimeout time.Duration
}

// DefaultMarketplaceSyncSchedulerConfig returns default configuration
func DefaultMarketplaceSyncSchedulerConfig() MarketplaceSyncSchedulerConfig {
	return MarketplaceSyncSchedulerConfig{
		Enabled:        true,
		Interval:       15 * time.Minute,
		ChannelTimeout: 10 * time.Minute,
	}
}

// Validate checks the configuration
func (c MarketplaceSyncSchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.ChannelTimeout < 0 {
		return fmt.Errorf("%w: channel timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// SyncSummary aggregates one sync pass over all active channels
type SyncSummary struct {
	StartedAt         time.Time
	FinishedAt        time.Time
	ChannelsTotal     int
	ChannelsSucceeded int
	ChannelsFailed    int
	OrdersProcessed   int
	OrdersFailed      int
	Results           []marketplace.SyncRunResult
}

func (s *SyncSummary) add(result *marketplace.SyncRunResult) {
	s.ChannelsTotal++
	if result.Success {
		s.ChannelsSucceeded++
	} else {
		s.ChannelsFailed++
	}
	s.OrdersProcessed += result.OrdersProcessed
	s.OrdersFailed += result.OrdersFailed
	s.Results = append(s.Results, *result)
}

// ManualSyncResult is returned by TriggerManualSync
type ManualSyncResult struct {
	Success bool
	Message string
	Results []marketplace.SyncRunResult
	// Err is set when the trigger was refused before any channel ran.
	// It is nil when channels ran, even if some of them failed.
	Err error
}

// Status is a snapshot of the scheduler state
type Status struct {
	IsRunning       bool
	IsSyncing       bool
	IntervalMinutes int
	LastSyncTime    *time.Time
	NextSyncTime    *time.Time
	ChannelResults  map[int64]marketplace.SyncRunResult
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// MarketplaceSyncScheduler periodically syncs orders from every active marketplace channel.
// At most one pass runs at a time; triggers that arrive while a pass is running are dropped.
type MarketplaceSyncScheduler struct {
	config   MarketplaceSyncSchedulerConfig
	channels marketplace.ChannelRepository
	resolver marketplace.AdapterResolver
	syncer   ChannelSyncer
	logger   *zap.Logger
	lease    SyncLease
	metrics  SyncMetrics
	now      func() time.Time

	syncing atomic.Bool

	mu           sync.RWMutex
	isRunning    bool
	startedAt    time.Time
	lastSyncTime *time.Time
	results      map[int64]marketplace.SyncRunResult
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Option configures a MarketplaceSyncScheduler
type Option func(*MarketplaceSyncScheduler)

// WithSyncLease enables cross-instance single-flight
func WithSyncLease(lease SyncLease) Option {
	return func(s *MarketplaceSyncScheduler) {
		s.lease = lease
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics SyncMetrics) Option {
	return func(s *MarketplaceSyncScheduler) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *MarketplaceSyncScheduler) {
		s.now = now
	}
}

// NewMarketplaceSyncScheduler creates a new marketplace sync scheduler
func NewMarketplaceSyncScheduler(
	config MarketplaceSyncSchedulerConfig,
	channels marketplace.ChannelRepository,
	resolver marketplace.AdapterResolver,
	syncer ChannelSyncer,
	logger *zap.Logger,
	opts ...Option,
) (*MarketplaceSyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &MarketplaceSyncScheduler{
		config:   config,
		channels: channels,
		resolver: resolver,
		syncer:   syncer,
		logger:   logger.Named("marketplace_sync"),
		metrics:  noopSyncMetrics{},
		now:      time.Now,
		results:  make(map[int64]marketplace.SyncRunResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start starts the periodic sync loop: one pass immediately, then one every interval
func (s *MarketplaceSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Info("Marketplace sync scheduler already running")
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Marketplace sync scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.startedAt = s.now()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Marketplace sync scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("channel_timeout", s.config.ChannelTimeout),
		zap.Bool("lease_enabled", s.lease != nil),
	)
	return nil
}

// Stop stops scheduling new passes and waits for an in-flight pass until ctx expires.
// The in-flight pass itself is not cancelled.
func (s *MarketplaceSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Marketplace sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Marketplace sync scheduler stop timed out")
		return ctx.Err()
	}
}

// runLoop fires a pass immediately and then on every tick until ctx is cancelled
func (s *MarketplaceSyncScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runScheduledPass(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Marketplace sync loop stopping")
			return
		case <-ticker.C:
			s.runScheduledPass(ctx)
		}
	}
}

func (s *MarketplaceSyncScheduler) runScheduledPass(ctx context.Context) {
	// stopping the loop must not abort a pass halfway through a channel
	passCtx := context.WithoutCancel(ctx)
	if _, err := s.PerformSync(passCtx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Info("Skipping scheduled sync pass", zap.Error(err))
			return
		}
		s.logger.Error("Scheduled sync pass failed", zap.Error(err))
	}
}

// PerformSync runs one pass over all active channels, sequentially and in registry order.
// It returns ErrSyncInProgress without doing anything when a pass is already running.
func (s *MarketplaceSyncScheduler) PerformSync(ctx context.Context) (*SyncSummary, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// channel spans from the reconciler nest under the pass span
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scheduler.sync_pass")
	defer span.End()

	startedAt := s.now()
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		s.logger.Error("Sync pass aborted: cannot list active channels", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "cannot list active channels")
		return nil, fmt.Errorf("%w: %v", ErrChannelListFailed, err)
	}

	s.logger.Info("Sync pass started", zap.Int("channels", len(channels)))

	summary := &SyncSummary{StartedAt: startedAt}
	for i := range channels {
		summary.add(s.syncOne(ctx, &channels[i]))
	}
	summary.FinishedAt = s.now()

	s.finishPass(summary.FinishedAt)
	s.metrics.RecordPass(ctx, summary.FinishedAt.Sub(startedAt), summary.ChannelsSucceeded, summary.ChannelsFailed)
	span.SetAttributes(
		attribute.Int("channels_succeeded", summary.ChannelsSucceeded),
		attribute.Int("channels_failed", summary.ChannelsFailed),
		attribute.Int("orders_processed", summary.OrdersProcessed),
	)

	s.logger.Info("Sync pass completed",
		zap.Int("channels_succeeded", summary.ChannelsSucceeded),
		zap.Int("channels_failed", summary.ChannelsFailed),
		zap.Int("orders_processed", summary.OrdersProcessed),
		zap.Int("orders_failed", summary.OrdersFailed),
		zap.Duration("duration", summary.FinishedAt.Sub(startedAt)),
	)
	return summary, nil
}

// TriggerManualSync runs a pass immediately, for one channel when channelID is set.
// A busy scheduler yields a failed result rather than an error; the request is not queued.
// The pass is detached from ctx cancellation so a dropped HTTP client does not abort it.
func (s *MarketplaceSyncScheduler) TriggerManualSync(ctx context.Context, channelID *int64) ManualSyncResult {
	ctx = context.WithoutCancel(ctx)

	if channelID == nil {
		summary, err := s.PerformSync(ctx)
		if err != nil {
			return manualFailure(err)
		}
		return ManualSyncResult{
			Success: summary.ChannelsFailed == 0,
			Message: fmt.Sprintf("Synced %d channel(s): %d succeeded, %d failed, %d order(s) processed",
				summary.ChannelsTotal, summary.ChannelsSucceeded, summary.ChannelsFailed, summary.OrdersProcessed),
			Results: summary.Results,
		}
	}

	release, err := s.begin(ctx)
	if err != nil {
		return manualFailure(err)
	}
	defer release()

	channel, err := s.channels.FindByID(ctx, *channelID)
	if err != nil {
		if errors.Is(err, marketplace.ErrChannelNotFound) {
			return ManualSyncResult{Message: fmt.Sprintf("Channel %d not found", *channelID), Err: err}
		}
		s.logger.Error("Failed to load channel for manual sync", zap.Int64("channel_id", *channelID), zap.Error(err))
		return ManualSyncResult{
			Message: fmt.Sprintf("Failed to load channel %d", *channelID),
			Err:     fmt.Errorf("%w: %w", ErrChannelLoadFailed, err),
		}
	}
	if !channel.Active {
		return ManualSyncResult{
			Message: fmt.Sprintf("Channel %d is not active", *channelID),
			Err:     marketplace.ErrChannelInactive,
		}
	}

	result := s.syncOne(ctx, channel)
	if !result.Success {
		return ManualSyncResult{
			Message: fmt.Sprintf("Sync failed for %s: %s", channel.Name, result.Error),
			Results: []marketplace.SyncRunResult{*result},
		}
	}
	return ManualSyncResult{
		Success: true,
		Message: fmt.Sprintf("Synced %d order(s) from %s", result.OrdersProcessed, channel.Name),
		Results: []marketplace.SyncRunResult{*result},
	}
}

// GetStatus returns a snapshot of the in-memory scheduler state; it performs no I/O
func (s *MarketplaceSyncScheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		IsRunning:       s.isRunning,
		IsSyncing:       s.syncing.Load(),
		IntervalMinutes: int(s.config.Interval / time.Minute),
		ChannelResults:  make(map[int64]marketplace.SyncRunResult, len(s.results)),
	}
	if s.lastSyncTime != nil {
		last := *s.lastSyncTime
		status.LastSyncTime = &last
	}
	if s.isRunning {
		next := s.nextTick(s.now())
		status.NextSyncTime = &next
	}
	for id, result := range s.results {
		status.ChannelResults[id] = result
	}
	return status
}

// IsSyncing reports whether a pass is running
func (s *MarketplaceSyncScheduler) IsSyncing() bool {
	return s.syncing.Load()
}

// nextTick is the first tick after now on the grid startedAt + k*interval
func (s *MarketplaceSyncScheduler) nextTick(now time.Time) time.Time {
	if now.Before(s.startedAt) {
		return s.startedAt
	}
	elapsed := now.Sub(s.startedAt)
	ticks := elapsed/s.config.Interval + 1
	return s.startedAt.Add(ticks * s.config.Interval)
}

// begin claims the local single-flight flag and, when configured, the cross-instance lease.
// The returned func releases both.
func (s *MarketplaceSyncScheduler) begin(ctx context.Context) (func(), error) {
	if !s.syncing.CompareAndSwap(false, true) {
		s.metrics.RecordSkipped(ctx, "local")
		return nil, ErrSyncInProgress
	}

	if s.lease == nil {
		return func() { s.syncing.Store(false) }, nil
	}

	acquired, err := s.lease.TryAcquire(ctx)
	switch {
	case err != nil:
		// lease backend down: keep syncing under the local guard only
		s.logger.Warn("Sync lease unavailable, continuing without it", zap.Error(err))
		return func() { s.syncing.Store(false) }, nil
	case !acquired:
		s.syncing.Store(false)
		s.metrics.RecordSkipped(ctx, "lease")
		return nil, fmt.Errorf("%w: lease held by another instance", ErrSyncInProgress)
	}

	stopRenewal := s.keepLeaseAlive(ctx)
	return func() {
		stopRenewal()
		if err := s.lease.Release(ctx); err != nil {
			s.logger.Warn("Failed to release sync lease", zap.Error(err))
		}
		s.syncing.Store(false)
	}, nil
}

// keepLeaseAlive extends the lease every TTL/3 until the returned func is called,
// so a pass longer than the TTL keeps other instances out.
func (s *MarketplaceSyncScheduler) keepLeaseAlive(ctx context.Context) func() {
	interval := s.lease.TTL() / 3
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				held, err := s.lease.Extend(ctx)
				switch {
				case err != nil:
					s.logger.Warn("Failed to extend sync lease", zap.Error(err))
				case !held:
					// another instance may already be syncing; the pass still finishes
					s.logger.Error("Sync lease lost during pass")
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// syncOne syncs a single channel; every failure, including a panic, becomes a failed result
func (s *MarketplaceSyncScheduler) syncOne(ctx context.Context, channel *marketplace.Channel) (result *marketplace.SyncRunResult) {
	startedAt := s.now()
	log := s.logger.With(
		zap.Int64("channel_id", channel.ID),
		zap.String("channel_type", channel.Type.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Channel sync panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = marketplace.NewSyncRunResult(channel, startedAt)
			result.Fail(fmt.Errorf("internal error: %v", r), s.now())
		}
		if result == nil {
			result = marketplace.NewSyncRunResult(channel, startedAt)
			result.Fail(errors.New("channel sync returned no result"), s.now())
		}
		s.recordResult(result)
		s.metrics.RecordChannel(ctx, result)
	}()

	client, err := s.resolver.Resolve(channel)
	if err != nil {
		log.Error("No marketplace adapter for channel", zap.Error(err))
		result = marketplace.NewSyncRunResult(channel, startedAt)
		result.Fail(err, s.now())
		return result
	}

	if s.config.ChannelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ChannelTimeout)
		defer cancel()
	}

	return s.syncer.SyncChannel(ctx, channel, client)
}

func (s *MarketplaceSyncScheduler) recordResult(result *marketplace.SyncRunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ChannelID] = *result
}

func (s *MarketplaceSyncScheduler) finishPass(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSyncTime = &at
}

func manualFailure(err error) ManualSyncResult {
	if errors.Is(err, ErrSyncInProgress) {
		return ManualSyncResult{Message: SyncInProgressMessage, Err: err}
	}
	return ManualSyncResult{Message: err.Error(), Err: err}
}
