package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

type fakeChannelRepository struct {
	mu       sync.Mutex
	channels []marketplace.Channel
	listErr  error
	findErr  error
	listed   atomic.Int32
}

func (r *fakeChannelRepository) ListActive(_ context.Context) ([]marketplace.Channel, error) {
	r.listed.Add(1)
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []marketplace.Channel
	for _, c := range r.channels {
		if c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

func (r *fakeChannelRepository) FindByID(_ context.Context, id int64) (*marketplace.Channel, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.channels {
		if r.channels[i].ID == id {
			c := r.channels[i]
			return &c, nil
		}
	}
	return nil, marketplace.ErrChannelNotFound
}

func (r *fakeChannelRepository) UpdateLastSyncAt(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

type fakeClient struct {
	channelType marketplace.ChannelType
}

func (c *fakeClient) Type() marketplace.ChannelType { return c.channelType }

func (c *fakeClient) GetOrders(context.Context, *marketplace.Channel, marketplace.FetchOptions) ([]marketplace.RawOrder, error) {
	return nil, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(channel *marketplace.Channel) (marketplace.MarketplaceClient, error) {
	if !channel.Type.IsValid() {
		return nil, marketplace.ErrUnsupportedChannelType
	}
	return &fakeClient{channelType: channel.Type}, nil
}

// fakeSyncer succeeds for every channel unless told otherwise; block, when set,
// holds each call until it is closed.
type fakeSyncer struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	started  chan struct{}
	block    chan struct{}
	fail     map[int64]bool
	panicOn  map[int64]bool
	sawCtx   chan context.Context
}

func (s *fakeSyncer) SyncChannel(ctx context.Context, channel *marketplace.Channel, _ marketplace.MarketplaceClient) *marketplace.SyncRunResult {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	if s.sawCtx != nil {
		s.sawCtx <- ctx
	}
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		<-s.block
	}
	if s.panicOn[channel.ID] {
		panic("boom")
	}

	result := marketplace.NewSyncRunResult(channel, time.Now())
	if s.fail[channel.ID] {
		result.Fail(errors.New("upstream unavailable"), time.Now())
		return result
	}
	result.OrdersFetched = 2
	result.OrdersProcessed = 2
	result.OrdersCreated = 2
	result.Succeed(time.Now())
	return result
}

type fakeLease struct {
	acquire  bool
	err      error
	ttl      time.Duration
	lost     bool
	acquired atomic.Int32
	extended atomic.Int32
	released atomic.Int32
}

func (l *fakeLease) TryAcquire(context.Context) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.acquire {
		l.acquired.Add(1)
	}
	return l.acquire, nil
}

func (l *fakeLease) Extend(context.Context) (bool, error) {
	l.extended.Add(1)
	return !l.lost, nil
}

func (l *fakeLease) TTL() time.Duration { return l.ttl }

func (l *fakeLease) Release(context.Context) error {
	l.released.Add(1)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	passes   int
	channels int
	skipped  []string
}

func (m *recordingMetrics) RecordPass(context.Context, time.Duration, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
}

func (m *recordingMetrics) RecordChannel(context.Context, *marketplace.SyncRunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels++
}

func (m *recordingMetrics) RecordSkipped(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped = append(m.skipped, reason)
}

func testChannels() []marketplace.Channel {
	return []marketplace.Channel{
		{ID: 1, Type: marketplace.ChannelTypeBigCommerce, Name: "BC Store", Active: true},
		{ID: 2, Type: marketplace.ChannelTypeAmazon, Name: "Amazon US", Active: true},
		{ID: 3, Type: marketplace.ChannelTypeAmazon, Name: "Amazon EU", Active: false},
	}
}

func newTestScheduler(t *testing.T, cfg MarketplaceSyncSchedulerConfig, syncer *fakeSyncer, opts ...Option) (*MarketplaceSyncScheduler, *fakeChannelRepository) {
	t.Helper()
	repo := &fakeChannelRepository{channels: testChannels()}
	s, err := NewMarketplaceSyncScheduler(cfg, repo, fakeResolver{}, syncer, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return s, repo
}

// ---------------------------------------------------------------------------
// Configuration Tests
// ---------------------------------------------------------------------------

func TestDefaultMarketplaceSyncSchedulerConfig(t *testing.T) {
	cfg := DefaultMarketplaceSyncSchedulerConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, 10*time.Minute, cfg.ChannelTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestMarketplaceSyncSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  MarketplaceSyncSchedulerConfig
	}{
		{"zero interval", MarketplaceSyncSchedulerConfig{Interval: 0}},
		{"negative interval", MarketplaceSyncSchedulerConfig{Interval: -time.Minute}},
		{"negative timeout", MarketplaceSyncSchedulerConfig{Interval: time.Minute, ChannelTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewMarketplaceSyncScheduler_InvalidConfig(t *testing.T) {
	_, err := NewMarketplaceSyncScheduler(MarketplaceSyncSchedulerConfig{}, &fakeChannelRepository{}, fakeResolver{}, &fakeSyncer{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// PerformSync Tests
// ---------------------------------------------------------------------------

func TestPerformSync_SyncsActiveChannelsOnly(t *testing.T) {
	syncer := &fakeSyncer{}
	metrics := &recordingMetrics{}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer, WithMetrics(metrics))

	summary, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), syncer.calls.Load())
	assert.Equal(t, 2, summary.ChannelsTotal)
	assert.Equal(t, 2, summary.ChannelsSucceeded)
	assert.Equal(t, 4, summary.OrdersProcessed)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, int64(1), summary.Results[0].ChannelID)
	assert.Equal(t, int64(2), summary.Results[1].ChannelID)

	status := s.GetStatus()
	assert.NotNil(t, status.LastSyncTime)
	assert.Len(t, status.ChannelResults, 2)
	assert.False(t, status.IsSyncing)
	assert.Equal(t, 1, metrics.passes)
	assert.Equal(t, 2, metrics.channels)
}

func TestPerformSync_ChannelsRunSequentially(t *testing.T) {
	syncer := &fakeSyncer{}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)

	_, err := s.PerformSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), syncer.maxSeen.Load())
}

func TestPerformSync_OneChannelFailureDoesNotStopOthers(t *testing.T) {
	syncer := &fakeSyncer{fail: map[int64]bool{1: true}}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)

	summary, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ChannelsFailed)
	assert.Equal(t, 1, summary.ChannelsSucceeded)
	status := s.GetStatus()
	assert.False(t, status.ChannelResults[1].Success)
	assert.Equal(t, "upstream unavailable", status.ChannelResults[1].Error)
	assert.True(t, status.ChannelResults[2].Success)
}

func TestPerformSync_RecoversChannelPanic(t *testing.T) {
	syncer := &fakeSyncer{panicOn: map[int64]bool{1: true}}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)

	summary, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ChannelsFailed)
	assert.Equal(t, 1, summary.ChannelsSucceeded)
	assert.Contains(t, s.GetStatus().ChannelResults[1].Error, "internal error")
	assert.False(t, s.IsSyncing())
}

func TestPerformSync_UnsupportedChannelType(t *testing.T) {
	syncer := &fakeSyncer{}
	s, repo := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)
	repo.channels = append(repo.channels, marketplace.Channel{ID: 9, Type: "ebay", Name: "eBay", Active: true})

	summary, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), syncer.calls.Load())
	assert.Equal(t, 1, summary.ChannelsFailed)
	assert.False(t, s.GetStatus().ChannelResults[9].Success)
}

func TestPerformSync_ListActiveError(t *testing.T) {
	syncer := &fakeSyncer{}
	s, repo := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)
	repo.listErr = errors.New("connection refused")

	summary, err := s.PerformSync(context.Background())
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, ErrChannelListFailed)
	assert.Zero(t, syncer.calls.Load())
	assert.Nil(t, s.GetStatus().LastSyncTime)
	assert.False(t, s.IsSyncing())
}

func TestPerformSync_RecordsPassSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	s, repo := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), &fakeSyncer{})
	_, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	repo.listErr = errors.New("connection refused")
	_, err = s.PerformSync(context.Background())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "scheduler.sync_pass", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestPerformSync_SingleFlight(t *testing.T) {
	syncer := &fakeSyncer{started: make(chan struct{}, 1), block: make(chan struct{})}
	metrics := &recordingMetrics{}
	s, repo := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer, WithMetrics(metrics))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.PerformSync(context.Background())
	}()
	<-syncer.started
	assert.True(t, s.GetStatus().IsSyncing)

	_, err := s.PerformSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(syncer.block)
	<-done

	assert.Equal(t, int32(1), repo.listed.Load())
	assert.Equal(t, []string{"local"}, metrics.skipped)
	assert.False(t, s.IsSyncing())
}

func TestPerformSync_ChannelTimeoutApplied(t *testing.T) {
	syncer := &fakeSyncer{sawCtx: make(chan context.Context, 2)}
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.ChannelTimeout = time.Minute
	s, _ := newTestScheduler(t, cfg, syncer)

	_, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	ctx := <-syncer.sawCtx
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

// ---------------------------------------------------------------------------
// Lease Tests
// ---------------------------------------------------------------------------

func TestPerformSync_LeaseAcquiredAndReleased(t *testing.T) {
	lease := &fakeLease{acquire: true}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), &fakeSyncer{}, WithSyncLease(lease))

	_, err := s.PerformSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), lease.acquired.Load())
	assert.Equal(t, int32(1), lease.released.Load())
}

func TestPerformSync_LeaseExtendedDuringLongPass(t *testing.T) {
	lease := &fakeLease{acquire: true, ttl: 30 * time.Millisecond}
	syncer := &fakeSyncer{block: make(chan struct{})}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer, WithSyncLease(lease))

	done := make(chan error, 1)
	go func() {
		_, err := s.PerformSync(context.Background())
		done <- err
	}()

	assert.Eventually(t, func() bool { return lease.extended.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	close(syncer.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), lease.released.Load())

	// renewal stops with the pass
	extended := lease.extended.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, extended, lease.extended.Load())
}

func TestPerformSync_LostLeaseStopsRenewal(t *testing.T) {
	lease := &fakeLease{acquire: true, ttl: 15 * time.Millisecond, lost: true}
	syncer := &fakeSyncer{block: make(chan struct{})}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer, WithSyncLease(lease))

	done := make(chan error, 1)
	go func() {
		_, err := s.PerformSync(context.Background())
		done <- err
	}()

	assert.Eventually(t, func() bool { return lease.extended.Load() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	close(syncer.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), lease.extended.Load())
}

func TestPerformSync_LeaseHeldElsewhere(t *testing.T) {
	lease := &fakeLease{acquire: false}
	syncer := &fakeSyncer{}
	metrics := &recordingMetrics{}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer, WithSyncLease(lease), WithMetrics(metrics))

	_, err := s.PerformSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Zero(t, syncer.calls.Load())
	assert.Zero(t, lease.released.Load())
	assert.Equal(t, []string{"lease"}, metrics.skipped)
	assert.False(t, s.IsSyncing())
}

func TestPerformSync_LeaseErrorFailsOpen(t *testing.T) {
	lease := &fakeLease{err: errors.New("redis down")}
	syncer := &fakeSyncer{}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer, WithSyncLease(lease))

	summary, err := s.PerformSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ChannelsSucceeded)
	assert.Zero(t, lease.released.Load())
}

// ---------------------------------------------------------------------------
// TriggerManualSync Tests
// ---------------------------------------------------------------------------

func TestTriggerManualSync_AllChannels(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), &fakeSyncer{})

	result := s.TriggerManualSync(context.Background(), nil)

	assert.True(t, result.Success)
	assert.Len(t, result.Results, 2)
	assert.Contains(t, result.Message, "Synced 2 channel(s)")
}

func TestTriggerManualSync_PartialFailure(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), &fakeSyncer{fail: map[int64]bool{2: true}})

	result := s.TriggerManualSync(context.Background(), nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "1 failed")
}

func TestTriggerManualSync_SingleChannel(t *testing.T) {
	syncer := &fakeSyncer{}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)
	id := int64(2)

	result := s.TriggerManualSync(context.Background(), &id)

	assert.True(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.Equal(t, id, result.Results[0].ChannelID)
	assert.Equal(t, "Synced 2 order(s) from Amazon US", result.Message)
	assert.Equal(t, int32(1), syncer.calls.Load())
	// a single-channel trigger is not a full pass
	assert.Nil(t, s.GetStatus().LastSyncTime)
}

func TestTriggerManualSync_ChannelErrors(t *testing.T) {
	tests := []struct {
		name    string
		id      int64
		message string
		err     error
	}{
		{"not found", 42, "Channel 42 not found", marketplace.ErrChannelNotFound},
		{"inactive", 3, "Channel 3 is not active", marketplace.ErrChannelInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{}
			s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)

			result := s.TriggerManualSync(context.Background(), &tt.id)

			assert.False(t, result.Success)
			assert.Equal(t, tt.message, result.Message)
			assert.ErrorIs(t, result.Err, tt.err)
			assert.Zero(t, syncer.calls.Load())
			assert.False(t, s.IsSyncing())
		})
	}
}

func TestTriggerManualSync_ChannelLoadError(t *testing.T) {
	syncer := &fakeSyncer{}
	s, repo := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)
	repo.findErr = errors.New("connection reset")
	id := int64(1)

	result := s.TriggerManualSync(context.Background(), &id)

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to load channel 1", result.Message)
	assert.ErrorIs(t, result.Err, ErrChannelLoadFailed)
	assert.Zero(t, syncer.calls.Load())
	assert.False(t, s.IsSyncing())
}

func TestTriggerManualSync_SingleChannelFailure(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), &fakeSyncer{fail: map[int64]bool{1: true}})
	id := int64(1)

	result := s.TriggerManualSync(context.Background(), &id)

	assert.False(t, result.Success)
	assert.Equal(t, "Sync failed for BC Store: upstream unavailable", result.Message)
	assert.NoError(t, result.Err)
	require.Len(t, result.Results, 1)
}

func TestTriggerManualSync_WhileBusy(t *testing.T) {
	syncer := &fakeSyncer{started: make(chan struct{}, 1), block: make(chan struct{})}
	s, _ := newTestScheduler(t, DefaultMarketplaceSyncSchedulerConfig(), syncer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.PerformSync(context.Background())
	}()
	<-syncer.started

	id := int64(1)
	for _, channelID := range []*int64{nil, &id} {
		result := s.TriggerManualSync(context.Background(), channelID)
		assert.False(t, result.Success)
		assert.Equal(t, SyncInProgressMessage, result.Message)
		assert.ErrorIs(t, result.Err, ErrSyncInProgress)
		assert.Empty(t, result.Results)
	}

	close(syncer.block)
	<-done
	assert.Equal(t, int32(2), syncer.calls.Load())
}

func TestTriggerManualSync_IgnoresCallerCancellation(t *testing.T) {
	syncer := &fakeSyncer{sawCtx: make(chan context.Context, 2)}
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.ChannelTimeout = 0
	s, _ := newTestScheduler(t, cfg, syncer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := s.TriggerManualSync(ctx, nil)

	assert.True(t, result.Success)
	seen := <-syncer.sawCtx
	assert.NoError(t, seen.Err())
}

// ---------------------------------------------------------------------------
// Lifecycle Tests
// ---------------------------------------------------------------------------

func TestMarketplaceSyncScheduler_StartRunsImmediatePass(t *testing.T) {
	syncer := &fakeSyncer{}
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.Interval = time.Hour
	s, _ := newTestScheduler(t, cfg, syncer)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return s.GetStatus().LastSyncTime != nil
	}, 2*time.Second, 10*time.Millisecond)

	status := s.GetStatus()
	assert.True(t, status.IsRunning)
	assert.Equal(t, 60, status.IntervalMinutes)
	require.NotNil(t, status.NextSyncTime)
	assert.True(t, status.NextSyncTime.After(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.GetStatus().IsRunning)
	assert.Nil(t, s.GetStatus().NextSyncTime)
	assert.Equal(t, int32(2), syncer.calls.Load())
}

func TestMarketplaceSyncScheduler_TicksOnInterval(t *testing.T) {
	syncer := &fakeSyncer{}
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.Interval = 20 * time.Millisecond
	s, repo := newTestScheduler(t, cfg, syncer)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return repo.listed.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
}

func TestMarketplaceSyncScheduler_Disabled(t *testing.T) {
	syncer := &fakeSyncer{}
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.Enabled = false
	s, _ := newTestScheduler(t, cfg, syncer)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.GetStatus().IsRunning)

	// manual triggers still work
	result := s.TriggerManualSync(context.Background(), nil)
	assert.True(t, result.Success)
	require.NoError(t, s.Stop(context.Background()))
}

func TestMarketplaceSyncScheduler_StartTwice(t *testing.T) {
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.Interval = time.Hour
	s, repo := newTestScheduler(t, cfg, &fakeSyncer{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, int32(1), repo.listed.Load())
}

func TestMarketplaceSyncScheduler_StopWaitsForInFlightPass(t *testing.T) {
	syncer := &fakeSyncer{started: make(chan struct{}, 1), block: make(chan struct{})}
	cfg := DefaultMarketplaceSyncSchedulerConfig()
	cfg.Interval = time.Hour
	s, _ := newTestScheduler(t, cfg, syncer)

	require.NoError(t, s.Start(context.Background()))
	<-syncer.started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(syncer.block)
	assert.Eventually(t, func() bool {
		return !s.IsSyncing()
	}, 2*time.Second, 5*time.Millisecond)
	// the detached pass finished both channels
	assert.Len(t, s.GetStatus().ChannelResults, 2)
}

func TestMarketplaceSyncScheduler_NextTick(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &MarketplaceSyncScheduler{
		config:    MarketplaceSyncSchedulerConfig{Interval: 15 * time.Minute},
		startedAt: start,
	}

	assert.Equal(t, start.Add(15*time.Minute), s.nextTick(start))
	assert.Equal(t, start.Add(15*time.Minute), s.nextTick(start.Add(14*time.Minute)))
	assert.Equal(t, start.Add(30*time.Minute), s.nextTick(start.Add(15*time.Minute)))
	assert.Equal(t, start.Add(45*time.Minute), s.nextTick(start.Add(40*time.Minute)))
	assert.Equal(t, start, s.nextTick(start.Add(-time.Minute)))
}
