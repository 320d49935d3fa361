package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

// MarketplaceChannelModel is the persistence model for a configured marketplace channel.
// Credentials are stored as an opaque JSON document and decoded by the adapters.
type MarketplaceChannelModel struct {
	ID              int64                   `gorm:"primaryKey;autoIncrement"`
	Type            marketplace.ChannelType `gorm:"type:varchar(30);not null;index"`
	Name            string                  `gorm:"type:varchar(100);not null"`
	Active          bool                    `gorm:"not null;default:true;index"`
	CredentialsJSON string                  `gorm:"type:jsonb;column:credentials;not null"`
	LastSyncAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceChannelModel) TableName() string {
	return "marketplace_channels"
}

// ToDomain converts the persistence model to a domain Channel
func (m *MarketplaceChannelModel) ToDomain() *marketplace.Channel {
	channel := &marketplace.Channel{
		ID:         m.ID,
		Type:       m.Type,
		Name:       m.Name,
		Active:     m.Active,
		LastSyncAt: m.LastSyncAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.CredentialsJSON != "" {
		channel.Credentials = json.RawMessage(m.CredentialsJSON)
	}
	return channel
}

// FromDomain populates the persistence model from a domain Channel
func (m *MarketplaceChannelModel) FromDomain(c *marketplace.Channel) {
	m.ID = c.ID
	m.Type = c.Type
	m.Name = c.Name
	m.Active = c.Active
	m.LastSyncAt = c.LastSyncAt
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
	m.CredentialsJSON = "{}"
	if len(c.Credentials) > 0 {
		m.CredentialsJSON = string(c.Credentials)
	}
}

// MarketplaceChannelModelFromDomain creates a new persistence model from a domain Channel
func MarketplaceChannelModelFromDomain(c *marketplace.Channel) *MarketplaceChannelModel {
	m := &MarketplaceChannelModel{}
	m.FromDomain(c)
	return m
}

// MarketplaceOrderModel is the persistence model for a canonical marketplace order.
// (channel_id, external_order_id) is unique and serves as the natural key.
type MarketplaceOrderModel struct {
	ID                  uuid.UUID                   `gorm:"type:uuid;primary_key"`
	ChannelID           int64                       `gorm:"not null;uniqueIndex:idx_marketplace_orders_channel_external,priority:1"`
	ExternalOrderID     string                      `gorm:"type:varchar(100);not null;uniqueIndex:idx_marketplace_orders_channel_external,priority:2"`
	ExternalOrderNumber string                      `gorm:"type:varchar(100)"`
	Status              string                      `gorm:"type:varchar(50);index"`
	PaymentStatus       string                      `gorm:"type:varchar(50)"`
	CustomerName        string                      `gorm:"type:varchar(200);not null"`
	CustomerEmail       string                      `gorm:"type:varchar(200)"`
	ShippingAddressJSON string                      `gorm:"type:jsonb;column:shipping_address;not null"`
	BillingAddressJSON  string                      `gorm:"type:jsonb;column:billing_address;not null"`
	GrandTotal          decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	Subtotal            decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	TaxTotal            decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingTotal       decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountTotal       decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	Currency            string                      `gorm:"type:char(3);not null;default:'USD'"`
	ShippingMethod      string                      `gorm:"type:varchar(100)"`
	OrderPlacedAt       *time.Time                  `gorm:"index"`
	Items               []MarketplaceOrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt           time.Time                   `gorm:"not null"`
	UpdatedAt           time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *MarketplaceOrderModel) ToDomain() *marketplace.Order {
	order := &marketplace.Order{
		ID:                  m.ID,
		ChannelID:           m.ChannelID,
		ExternalOrderID:     m.ExternalOrderID,
		ExternalOrderNumber: m.ExternalOrderNumber,
		Status:              m.Status,
		PaymentStatus:       m.PaymentStatus,
		CustomerName:        m.CustomerName,
		CustomerEmail:       m.CustomerEmail,
		ShippingAddress:     decodeAddress(m.ShippingAddressJSON),
		BillingAddress:      decodeAddress(m.BillingAddressJSON),
		GrandTotal:          m.GrandTotal,
		Subtotal:            m.Subtotal,
		TaxTotal:            m.TaxTotal,
		ShippingTotal:       m.ShippingTotal,
		DiscountTotal:       m.DiscountTotal,
		Currency:            m.Currency,
		ShippingMethod:      m.ShippingMethod,
		OrderPlacedAt:       m.OrderPlacedAt,
		Items:               make([]marketplace.OrderItem, len(m.Items)),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	for i := range m.Items {
		order.Items[i] = *m.Items[i].ToDomain()
	}
	return order
}

// FromDomain populates the persistence model from a domain Order, including its items
func (m *MarketplaceOrderModel) FromDomain(o *marketplace.Order) {
	m.ID = o.ID
	m.ChannelID = o.ChannelID
	m.ExternalOrderID = o.ExternalOrderID
	m.ExternalOrderNumber = o.ExternalOrderNumber
	m.Status = o.Status
	m.PaymentStatus = o.PaymentStatus
	m.CustomerName = o.CustomerName
	m.CustomerEmail = o.CustomerEmail
	m.ShippingAddressJSON = encodeAddress(o.ShippingAddress)
	m.BillingAddressJSON = encodeAddress(o.BillingAddress)
	m.GrandTotal = o.GrandTotal
	m.Subtotal = o.Subtotal
	m.TaxTotal = o.TaxTotal
	m.ShippingTotal = o.ShippingTotal
	m.DiscountTotal = o.DiscountTotal
	m.Currency = o.Currency
	m.ShippingMethod = o.ShippingMethod
	m.OrderPlacedAt = o.OrderPlacedAt
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt

	m.Items = make([]MarketplaceOrderItemModel, len(o.Items))
	for i := range o.Items {
		m.Items[i].FromDomain(&o.Items[i])
	}
}

// MarketplaceOrderModelFromDomain creates a new persistence model from a domain Order
func MarketplaceOrderModelFromDomain(o *marketplace.Order) *MarketplaceOrderModel {
	m := &MarketplaceOrderModel{}
	m.FromDomain(o)
	return m
}

// MarketplaceOrderItemModel is the persistence model for an order line item.
// (order_id, external_item_id) is unique so re-synced items are refreshed in place.
type MarketplaceOrderItemModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_marketplace_order_items_order_external,priority:1"`
	ExternalItemID string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_marketplace_order_items_order_external,priority:2"`
	SKU            string          `gorm:"type:varchar(100);index"`
	Name           string          `gorm:"type:varchar(500)"`
	Quantity       int             `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderItemModel) TableName() string {
	return "marketplace_order_items"
}

// ToDomain converts the persistence model to a domain OrderItem
func (m *MarketplaceOrderItemModel) ToDomain() *marketplace.OrderItem {
	return &marketplace.OrderItem{
		ID:             m.ID,
		OrderID:        m.OrderID,
		ExternalItemID: m.ExternalItemID,
		SKU:            m.SKU,
		Name:           m.Name,
		Quantity:       m.Quantity,
		UnitPrice:      m.UnitPrice,
		TotalPrice:     m.TotalPrice,
	}
}

// FromDomain populates the persistence model from a domain OrderItem
func (m *MarketplaceOrderItemModel) FromDomain(i *marketplace.OrderItem) {
	m.ID = i.ID
	m.OrderID = i.OrderID
	m.ExternalItemID = i.ExternalItemID
	m.SKU = i.SKU
	m.Name = i.Name
	m.Quantity = i.Quantity
	m.UnitPrice = i.UnitPrice
	m.TotalPrice = i.TotalPrice
}

// encodeAddress serializes an address; empty addresses are stored as an empty JSON object
func encodeAddress(a marketplace.Address) string {
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeAddress(s string) marketplace.Address {
	var a marketplace.Address
	if s == "" {
		return a
	}
	_ = json.Unmarshal([]byte(s), &a)
	return a
}

// MarketplaceModels lists the models backing the marketplace tables, in dependency order
func MarketplaceModels() []interface{} {
	return []interface{}{
		&MarketplaceChannelModel{},
		&MarketplaceOrderModel{},
		&MarketplaceOrderItemModel{},
	}
}
