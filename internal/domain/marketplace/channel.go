package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// Marketplace Errors
// ---------------------------------------------------------------------------

var (
	// Channel errors
	ErrChannelNotFound        = errors.New("marketplace: channel not found")
	ErrChannelInactive        = errors.New("marketplace: channel is not active")
	ErrUnsupportedChannelType = errors.New("marketplace: unsupported channel type")
	ErrInvalidCredentials     = errors.New("marketplace: invalid channel credentials")

	// Vendor API errors
	ErrMarketplaceRequestFailed = errors.New("marketplace: request failed")
	ErrMarketplaceRateLimited   = errors.New("marketplace: rate limited")
	ErrMarketplaceUnavailable   = errors.New("marketplace: temporarily unavailable")
	ErrMarketplaceAuthFailed    = errors.New("marketplace: authentication failed")
	ErrMalformedPayload         = errors.New("marketplace: malformed order payload")

	// Order errors
	ErrOrderNotFound = errors.New("marketplace: order not found")
	ErrInvalidOrder  = errors.New("marketplace: invalid order")
)

// ---------------------------------------------------------------------------
// ChannelType
// ---------------------------------------------------------------------------

// ChannelType identifies which external marketplace a channel connects to
type ChannelType string

const (
	// ChannelTypeBigCommerce is a BigCommerce store
	ChannelTypeBigCommerce ChannelType = "bigcommerce"
	// ChannelTypeAmazon is an Amazon seller account (Selling Partner API)
	ChannelTypeAmazon ChannelType = "amazon"
)

// IsValid returns true if the channel type is known
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelTypeBigCommerce, ChannelTypeAmazon:
		return true
	default:
		return false
	}
}

// String returns the string representation of ChannelType
func (t ChannelType) String() string {
	return string(t)
}

// DisplayName returns a human-readable name for the marketplace
func (t ChannelType) DisplayName() string {
	switch t {
	case ChannelTypeBigCommerce:
		return "BigCommerce"
	case ChannelTypeAmazon:
		return "Amazon"
	default:
		return string(t)
	}
}

// ---------------------------------------------------------------------------
// Channel
// ---------------------------------------------------------------------------

// Channel is a configured connection to one external marketplace account.
// Channels are managed by an admin workflow; the sync pipeline only reads them
// and advances LastSyncAt.
type Channel struct {
	ID          int64
	Type        ChannelType
	Name        string
	Active      bool
	Credentials json.RawMessage
	LastSyncAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DecodeCredentials unmarshals the opaque credential blob into target
func (c *Channel) DecodeCredentials(target any) error {
	if len(c.Credentials) == 0 {
		return ErrInvalidCredentials
	}
	if err := json.Unmarshal(c.Credentials, target); err != nil {
		return errors.Join(ErrInvalidCredentials, err)
	}
	return nil
}

// ModifiedSince returns the lower bound for an incremental fetch.
// The window is widened by overlap so orders modified during the previous pass
// are seen again. Nil means the channel has never been synced.
func (c *Channel) ModifiedSince(overlap time.Duration) *time.Time {
	if c.LastSyncAt == nil {
		return nil
	}
	since := c.LastSyncAt.Add(-overlap)
	return &since
}

// ChannelRepository is the channel registry port
type ChannelRepository interface {
	// ListActive returns all channels with the active flag set, ordered by id
	ListActive(ctx context.Context) ([]Channel, error)

	// FindByID returns a channel regardless of its active flag
	FindByID(ctx context.Context, id int64) (*Channel, error)

	// UpdateLastSyncAt sets last_sync_at for the channel
	UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error
}
