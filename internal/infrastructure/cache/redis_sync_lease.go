package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidLeaseTTL is returned when a lease is created with a non-positive TTL
var ErrInvalidLeaseTTL = errors.New("lease ttl must be positive")

// releaseLeaseScript deletes the lease only while it still carries our token,
// so an instance whose lease expired cannot release a lease another instance took over.
// KEYS[1] = lease key
// ARGV[1] = holder token
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendLeaseScript resets the TTL only while the lease still carries our token.
// KEYS[1] = lease key
// ARGV[1] = holder token
// ARGV[2] = ttl in milliseconds
var extendLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisSyncLease implements a cross-instance sync lease using Redis.
// Acquisition is SET key token NX PX ttl; each lease value holds a per-process token.
type RedisSyncLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRedisSyncLease creates a lease on key with the given TTL
func NewRedisSyncLease(client *redis.Client, key string, ttl time.Duration) (*RedisSyncLease, error) {
	if ttl <= 0 {
		return nil, ErrInvalidLeaseTTL
	}
	return &RedisSyncLease{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}, nil
}

// TryAcquire takes the lease if nobody holds it.
// Returns false without error when another holder has it.
func (l *RedisSyncLease) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	return acquired, nil
}

// Release drops the lease if this holder still owns it
func (l *RedisSyncLease) Release(ctx context.Context) error {
	if err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release sync lease: %w", err)
	}
	return nil
}

// Extend renews the lease if this holder still owns it.
// Returns false without error when the lease expired or another holder took it.
func (l *RedisSyncLease) Extend(ctx context.Context) (bool, error) {
	n, err := extendLeaseScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to extend sync lease: %w", err)
	}
	return n == 1, nil
}

// TTL returns the lease duration
func (l *RedisSyncLease) TTL() time.Duration {
	return l.ttl
}

// Close closes the Redis client
func (l *RedisSyncLease) Close() error {
	return l.client.Close()
}
