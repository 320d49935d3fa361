package marketplace

import "context"

// MarketplaceClient fetches orders from one external marketplace.
// Implementations hide vendor pagination and status partitioning; the
// returned slice holds each native order at most once.
type MarketplaceClient interface {
	// Type returns the marketplace this client talks to
	Type() ChannelType

	// GetOrders returns raw orders for the channel. Partial upstream failures
	// are tolerated and logged; an error means nothing usable was fetched.
	GetOrders(ctx context.Context, channel *Channel, opts FetchOptions) ([]RawOrder, error)
}

// AdapterResolver picks the client for a channel based on its type
type AdapterResolver interface {
	Resolve(channel *Channel) (MarketplaceClient, error)
}

// OrderNormalizer converts a RawOrder into a canonical Order for the given channel.
// It performs no I/O.
type OrderNormalizer func(channelID int64, raw RawOrder) (*Order, error)
