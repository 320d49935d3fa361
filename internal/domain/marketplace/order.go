package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultCurrency is used when a marketplace omits the order currency
	DefaultCurrency = "USD"
	// UnknownCustomerName is used when a marketplace omits the buyer name
	UnknownCustomerName = "Unknown Customer"
)

// ---------------------------------------------------------------------------
// RawOrder
// ---------------------------------------------------------------------------

// RawOrder is an order as returned by a marketplace client, before
// normalization. Payload holds the adapter's vendor-specific struct.
// RawOrder values are transient and never persisted.
type RawOrder struct {
	Source     ChannelType
	ExternalID string
	Payload    any
}

// FetchOptions filters a GetOrders call
type FetchOptions struct {
	// ModifiedSince restricts results to orders changed after this time.
	// Nil means no lower bound (adapters may apply their own initial lookback).
	ModifiedSince *time.Time
	// PageSize is the page size requested from the vendor API
	PageSize int
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Address is a postal address attached to an order
type Address struct {
	Name        string `json:"name,omitempty"`
	Company     string `json:"company,omitempty"`
	Street1     string `json:"street_1,omitempty"`
	Street2     string `json:"street_2,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// IsEmpty reports whether no address field is set
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// Order is the canonical, storage-ready representation of a marketplace order.
// (ChannelID, ExternalOrderID) is the natural key.
type Order struct {
	ID                  uuid.UUID
	ChannelID           int64
	ExternalOrderID     string
	ExternalOrderNumber string
	Status              string
	PaymentStatus       string
	CustomerName        string
	CustomerEmail       string
	ShippingAddress     Address
	BillingAddress      Address
	GrandTotal          decimal.Decimal
	Subtotal            decimal.Decimal
	TaxTotal            decimal.Decimal
	ShippingTotal       decimal.Decimal
	DiscountTotal       decimal.Decimal
	Currency            string
	ShippingMethod      string
	OrderPlacedAt       *time.Time
	Items               []OrderItem
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderItem is one line of a canonical order
type OrderItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ExternalItemID string
	SKU            string
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	TotalPrice     decimal.Decimal
}

// Validate checks the invariants a canonical order must satisfy before it is stored
func (o *Order) Validate() error {
	if o.ChannelID <= 0 {
		return fmt.Errorf("%w: channel id is required", ErrInvalidOrder)
	}
	if o.ExternalOrderID == "" {
		return fmt.Errorf("%w: external order id is required", ErrInvalidOrder)
	}
	money := map[string]decimal.Decimal{
		"grand_total":    o.GrandTotal,
		"subtotal":       o.Subtotal,
		"tax_total":      o.TaxTotal,
		"shipping_total": o.ShippingTotal,
		"discount_total": o.DiscountTotal,
	}
	for field, amount := range money {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidOrder, field)
		}
	}
	if len(o.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO 4217 code", ErrInvalidOrder)
	}
	for i := range o.Items {
		if err := o.Items[i].Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks line item invariants
func (i *OrderItem) Validate() error {
	if i.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrInvalidOrder)
	}
	if i.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price cannot be negative", ErrInvalidOrder)
	}
	return nil
}

// SyncedFields is the fixed set of order fields refreshed when an order that
// already exists is observed again. All other order fields are immutable once created.
type SyncedFields struct {
	Status        string
	PaymentStatus string
	GrandTotal    decimal.Decimal
	Currency      string
	UpdatedAt     time.Time
}

// SyncedFields extracts the mutable subset of the order
func (o *Order) SyncedFields(now time.Time) SyncedFields {
	return SyncedFields{
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		GrandTotal:    o.GrandTotal,
		Currency:      o.Currency,
		UpdatedAt:     now,
	}
}

// OrderRepository persists canonical orders
type OrderRepository interface {
	// FindByExternalID looks up an order by its natural key.
	// Returns ErrOrderNotFound when absent.
	FindByExternalID(ctx context.Context, channelID int64, externalOrderID string) (*Order, error)

	// Create inserts the order and all of its items atomically
	Create(ctx context.Context, order *Order) error

	// UpdateSyncedFields overwrites the mutable order fields
	UpdateSyncedFields(ctx context.Context, orderID uuid.UUID, fields SyncedFields) error

	// UpsertItems inserts or refreshes items keyed by (order id, external item id).
	// Items not present in the slice are left untouched.
	UpsertItems(ctx context.Context, orderID uuid.UUID, items []OrderItem) error
}
