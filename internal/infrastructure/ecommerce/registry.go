package ecommerce

import (
	"fmt"
	"sync"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

// AdapterFactory builds (or returns a shared) client for a channel
type AdapterFactory func(channel *marketplace.Channel) (marketplace.MarketplaceClient, error)

// AdapterRegistry maps marketplace types to adapter factories.
// Adding a marketplace means registering a factory; the scheduler does not change.
type AdapterRegistry struct {
	factories map[marketplace.ChannelType]AdapterFactory
	mu        sync.RWMutex
}

// NewAdapterRegistry creates an empty registry
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		factories: make(map[marketplace.ChannelType]AdapterFactory),
	}
}

// NewDefaultAdapterRegistry registers the BigCommerce and Amazon adapters.
// Each adapter instance is shared by every channel of its type.
func NewDefaultAdapterRegistry(bc *BigCommerceAdapter, amz *AmazonAdapter) *AdapterRegistry {
	r := NewAdapterRegistry()
	r.Register(marketplace.ChannelTypeBigCommerce, Shared(bc))
	r.Register(marketplace.ChannelTypeAmazon, Shared(amz))
	return r
}

// Shared returns a factory that always yields the given client
func Shared(client marketplace.MarketplaceClient) AdapterFactory {
	return func(*marketplace.Channel) (marketplace.MarketplaceClient, error) {
		return client, nil
	}
}

// Register sets the factory for a marketplace type, replacing any previous one
func (r *AdapterRegistry) Register(channelType marketplace.ChannelType, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[channelType] = factory
}

// Resolve implements AdapterResolver
func (r *AdapterRegistry) Resolve(channel *marketplace.Channel) (marketplace.MarketplaceClient, error) {
	r.mu.RLock()
	factory, ok := r.factories[channel.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", marketplace.ErrUnsupportedChannelType, channel.Type)
	}
	return factory(channel)
}

// Ensure AdapterRegistry implements AdapterResolver
var _ marketplace.AdapterResolver = (*AdapterRegistry)(nil)
