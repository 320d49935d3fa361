// Package marketplace defines the domain model for pulling orders from external
// marketplaces (BigCommerce, Amazon) into local storage.
//
// The package follows the Ports & Adapters pattern:
//   - Ports: MarketplaceClient, ChannelRepository, OrderRepository and AdapterResolver
//     are the interfaces the sync pipeline depends on.
//   - Adapters: concrete vendor clients live in infrastructure/marketplace and
//     the GORM repositories in infrastructure/persistence.
//
// Data flows one way: a channel's client returns RawOrder values, a normalizer
// turns each into a canonical Order, and the reconciler upserts the Order keyed
// by (channel id, external order id).
package marketplace
