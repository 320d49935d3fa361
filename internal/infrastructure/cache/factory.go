package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
)

// SyncLeaseFactory creates sync leases based on configuration
type SyncLeaseFactory struct {
	redisConfig           config.RedisConfig
	marketplaceConfig     config.MarketplaceConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration
}

// SyncLeaseFactoryOption is a functional option for configuring the factory
type SyncLeaseFactoryOption func(*SyncLeaseFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) SyncLeaseFactoryOption {
	return func(f *SyncLeaseFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory lease when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) SyncLeaseFactoryOption {
	return func(f *SyncLeaseFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithPingTimeout bounds the Redis connectivity check
func WithPingTimeout(timeout time.Duration) SyncLeaseFactoryOption {
	return func(f *SyncLeaseFactory) {
		f.pingTimeout = timeout
	}
}

// NewSyncLeaseFactory creates a new factory
func NewSyncLeaseFactory(redisCfg config.RedisConfig, marketplaceCfg config.MarketplaceConfig, opts ...SyncLeaseFactoryOption) *SyncLeaseFactory {
	f := &SyncLeaseFactory{
		redisConfig:           redisCfg,
		marketplaceConfig:     marketplaceCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLease creates a Redis-backed lease after checking connectivity
func (f *SyncLeaseFactory) CreateRedisLease() (*RedisSyncLease, error) {
	if f.marketplaceConfig.LeaseTTL <= 0 {
		return nil, ErrInvalidLeaseTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), f.pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSyncLease(client, f.marketplaceConfig.LeaseKey, f.marketplaceConfig.LeaseTTL)
}

// CreateLease returns the lease the scheduler should use.
// It returns nil when leasing is disabled. When Redis is unreachable it falls back
// to an in-memory lease if allowed, which only guards this process.
func (f *SyncLeaseFactory) CreateLease() (scheduler.SyncLease, error) {
	if !f.marketplaceConfig.LeaseEnabled {
		return nil, nil
	}

	lease, err := f.CreateRedisLease()
	if err == nil {
		f.logger.Info("using Redis sync lease",
			zap.String("key", f.marketplaceConfig.LeaseKey),
			zap.Duration("ttl", f.marketplaceConfig.LeaseTTL),
		)
		return lease, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for sync lease but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory sync lease. "+
		"Multiple instances may sync concurrently.",
		zap.Error(err),
	)
	fallback, err := NewInMemoryLeaseStore().Lease(f.marketplaceConfig.LeaseKey, f.marketplaceConfig.LeaseTTL)
	if err != nil {
		return nil, err
	}
	return fallback, nil
}

// Ensure the leases implement scheduler.SyncLease
var (
	_ scheduler.SyncLease = (*RedisSyncLease)(nil)
	_ scheduler.SyncLease = (*InMemorySyncLease)(nil)
)
