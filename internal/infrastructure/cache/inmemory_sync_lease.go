package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// leaseEntry is a held lease with its expiration
type leaseEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryLeaseStore holds leases for holders inside one process.
// It is suitable for single-instance deployments and testing; it does not
// coordinate separate processes.
type InMemoryLeaseStore struct {
	mu      sync.Mutex
	entries map[string]leaseEntry
	now     func() time.Time
}

// NewInMemoryLeaseStore creates a new in-memory lease store
func NewInMemoryLeaseStore() *InMemoryLeaseStore {
	return &InMemoryLeaseStore{
		entries: make(map[string]leaseEntry),
		now:     time.Now,
	}
}

// Lease returns a new holder for key; every holder gets its own token
func (s *InMemoryLeaseStore) Lease(key string, ttl time.Duration) (*InMemorySyncLease, error) {
	if ttl <= 0 {
		return nil, ErrInvalidLeaseTTL
	}
	return &InMemorySyncLease{
		store: s,
		key:   key,
		ttl:   ttl,
		token: uuid.NewString(),
	}, nil
}

func (s *InMemoryLeaseStore) acquire(key, token string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, exists := s.entries[key]; exists && now.Before(e.expiresAt) {
		return false
	}
	s.entries[key] = leaseEntry{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (s *InMemoryLeaseStore) release(key, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[key]; exists && e.token == token {
		delete(s.entries, key)
	}
}

func (s *InMemoryLeaseStore) extend(key, token string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, exists := s.entries[key]
	if !exists || e.token != token || !now.Before(e.expiresAt) {
		return false
	}
	s.entries[key] = leaseEntry{token: token, expiresAt: now.Add(ttl)}
	return true
}

// InMemorySyncLease is one holder's handle on an InMemoryLeaseStore key
type InMemorySyncLease struct {
	store *InMemoryLeaseStore
	key   string
	ttl   time.Duration
	token string
}

// TryAcquire takes the lease if it is free or expired
func (l *InMemorySyncLease) TryAcquire(_ context.Context) (bool, error) {
	return l.store.acquire(l.key, l.token, l.ttl), nil
}

// Extend renews the lease if this holder still owns it
func (l *InMemorySyncLease) Extend(_ context.Context) (bool, error) {
	return l.store.extend(l.key, l.token, l.ttl), nil
}

// TTL returns the lease duration
func (l *InMemorySyncLease) TTL() time.Duration {
	return l.ttl
}

// Release drops the lease if this holder still owns it
func (l *InMemorySyncLease) Release(_ context.Context) error {
	l.store.release(l.key, l.token)
	return nil
}
