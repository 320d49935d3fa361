package ecommerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

// normalizeFunc converts one vendor payload into a canonical order
type normalizeFunc func(channelID int64, payload any) (*marketplace.Order, error)

// normalizers maps each marketplace type to its payload normalizer
var normalizers = map[marketplace.ChannelType]normalizeFunc{
	marketplace.ChannelTypeBigCommerce: normalizeBigCommerce,
	marketplace.ChannelTypeAmazon:      normalizeAmazon,
}

// Normalize converts a RawOrder into a canonical Order.
// It is a pure function: missing money becomes 0, a missing buyer name becomes
// "Unknown Customer" and a missing or unknown currency becomes "USD".
func Normalize(channelID int64, raw marketplace.RawOrder) (*marketplace.Order, error) {
	fn, ok := normalizers[raw.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", marketplace.ErrUnsupportedChannelType, raw.Source)
	}
	return fn(channelID, raw.Payload)
}

// Ensure Normalize satisfies the OrderNormalizer port
var _ marketplace.OrderNormalizer = Normalize

// ---------------------------------------------------------------------------
// BigCommerce
// ---------------------------------------------------------------------------

func normalizeBigCommerce(channelID int64, payload any) (*marketplace.Order, error) {
	p, ok := payload.(*BigCommerceOrderPayload)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: expected bigcommerce payload, got %T", marketplace.ErrMalformedPayload, payload)
	}
	o := p.Order
	if o.ID == 0 {
		return nil, fmt.Errorf("%w: bigcommerce order without id", marketplace.ErrMalformedPayload)
	}

	id := strconv.FormatInt(o.ID, 10)
	status := strings.TrimSpace(o.Status)
	if status == "" {
		status = bigCommerceStatusName(o.StatusID)
	}
	currencyCode := o.CurrencyCode
	if strings.TrimSpace(currencyCode) == "" {
		currencyCode = o.DefaultCurrencyCode
	}

	order := &marketplace.Order{
		ChannelID:           channelID,
		ExternalOrderID:     id,
		ExternalOrderNumber: id,
		Status:              status,
		PaymentStatus:       strings.TrimSpace(o.PaymentStatus),
		CustomerName:        customerName(),
		GrandTotal:          parseMoney(o.TotalIncTax),
		Subtotal:            parseMoney(o.SubtotalExTax),
		TaxTotal:            parseMoney(o.TotalTax),
		ShippingTotal:       parseMoney(o.ShippingCostIncTax),
		DiscountTotal:       parseMoney(o.DiscountAmount).Add(parseMoney(o.CouponDiscount)),
		Currency:            normalizeCurrency(currencyCode),
		OrderPlacedAt:       parseTime(o.DateCreated, time.RFC1123Z, time.RFC3339),
		Items:               make([]marketplace.OrderItem, 0, len(p.Products)),
	}

	if b := o.BillingAddress; b != nil {
		order.CustomerName = customerName(b.FirstName, b.LastName)
		order.CustomerEmail = strings.TrimSpace(b.Email)
		order.BillingAddress = bigCommerceAddress(b)
	}
	if len(p.ShippingAddresses) > 0 {
		s := p.ShippingAddresses[0]
		order.ShippingAddress = bigCommerceAddress(&s)
		order.ShippingMethod = strings.TrimSpace(s.ShippingMethod)
	}

	for _, prod := range p.Products {
		unit := parseMoney(prod.PriceIncTax)
		if unit.IsZero() {
			unit = parseMoney(prod.BasePrice)
		}
		order.Items = append(order.Items, lineItem(
			strconv.FormatInt(prod.ID, 10), prod.SKU, prod.Name, prod.Quantity, unit, parseMoney(prod.TotalIncTax),
		))
	}

	return order, nil
}

func bigCommerceAddress(a *BigCommerceAddress) marketplace.Address {
	country := a.CountryISO2
	if country == "" {
		country = a.Country
	}
	return marketplace.Address{
		Name:        strings.TrimSpace(strings.Join([]string{a.FirstName, a.LastName}, " ")),
		Company:     a.Company,
		Street1:     a.Street1,
		Street2:     a.Street2,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.Zip,
		CountryCode: country,
		Phone:       a.Phone,
	}
}

// ---------------------------------------------------------------------------
// Amazon
// ---------------------------------------------------------------------------

func normalizeAmazon(channelID int64, payload any) (*marketplace.Order, error) {
	p, ok := payload.(*AmazonOrderPayload)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: expected amazon payload, got %T", marketplace.ErrMalformedPayload, payload)
	}
	o := p.Order
	if o.AmazonOrderID == "" {
		return nil, fmt.Errorf("%w: amazon order without id", marketplace.ErrMalformedPayload)
	}

	number := o.SellerOrderID
	if number == "" {
		number = o.AmazonOrderID
	}

	var currencyCode string
	if o.OrderTotal != nil {
		currencyCode = o.OrderTotal.CurrencyCode
	}

	order := &marketplace.Order{
		ChannelID:           channelID,
		ExternalOrderID:     o.AmazonOrderID,
		ExternalOrderNumber: number,
		Status:              o.OrderStatus,
		PaymentStatus:       amazonPaymentStatus(o.OrderStatus),
		CustomerName:        customerName(),
		GrandTotal:          amazonMoney(o.OrderTotal),
		Currency:            normalizeCurrency(currencyCode),
		ShippingMethod:      o.ShipServiceLevel,
		OrderPlacedAt:       parseTime(o.PurchaseDate, time.RFC3339),
		Items:               make([]marketplace.OrderItem, 0, len(p.Items)),
	}

	if b := o.BuyerInfo; b != nil {
		order.CustomerName = customerName(b.BuyerName)
		order.CustomerEmail = strings.TrimSpace(b.BuyerEmail)
	}
	if s := o.ShippingAddress; s != nil {
		order.ShippingAddress = marketplace.Address{
			Name:        s.Name,
			Company:     s.CompanyName,
			Street1:     s.AddressLine1,
			Street2:     s.AddressLine2,
			City:        s.City,
			State:       s.StateOrRegion,
			PostalCode:  s.PostalCode,
			CountryCode: s.CountryCode,
			Phone:       s.Phone,
		}
		if order.CustomerName == marketplace.UnknownCustomerName {
			order.CustomerName = customerName(s.Name)
		}
	}

	for _, item := range p.Items {
		total := amazonMoney(item.ItemPrice)
		unit := decimal.Zero
		if item.QuantityOrdered > 0 {
			unit = total.Div(decimal.NewFromInt(int64(item.QuantityOrdered))).Round(2)
		}
		sku := item.SellerSKU
		if sku == "" {
			sku = item.ASIN
		}
		order.Items = append(order.Items, lineItem(item.OrderItemID, sku, item.Title, item.QuantityOrdered, unit, total))

		order.Subtotal = order.Subtotal.Add(total)
		order.TaxTotal = order.TaxTotal.Add(amazonMoney(item.ItemTax)).Add(amazonMoney(item.ShippingTax))
		order.ShippingTotal = order.ShippingTotal.Add(amazonMoney(item.ShippingPrice))
		order.DiscountTotal = order.DiscountTotal.Add(amazonMoney(item.PromotionDiscount))
	}

	return order, nil
}

// amazonPaymentStatus derives a payment status from the order status;
// Amazon only exposes payment state through the order lifecycle.
func amazonPaymentStatus(orderStatus string) string {
	switch orderStatus {
	case "Pending", "PendingAvailability":
		return "pending"
	case "Unshipped", "PartiallyShipped", "Shipped", "InvoiceUnconfirmed":
		return "captured"
	case "Canceled":
		return "void"
	default:
		return ""
	}
}

func amazonMoney(m *AmazonMoney) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return parseMoney(m.Amount)
}

// ---------------------------------------------------------------------------
// Coercion Helpers
// ---------------------------------------------------------------------------

// parseMoney parses a decimal amount; empty, unparsable or negative values become zero
func parseMoney(s string) decimal.Decimal {
	d := ParseDecimal(strings.TrimSpace(s))
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseDecimal safely parses a decimal string, returning zero on failure
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalizeCurrency returns the upper-case ISO 4217 code, or USD when missing or unknown
func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return marketplace.DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return marketplace.DefaultCurrency
	}
	return unit.String()
}

// customerName joins the non-empty parts, falling back to the unknown-customer sentinel
func customerName(parts ...string) string {
	name := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if name == "" {
		return marketplace.UnknownCustomerName
	}
	return name
}

// parseTime tries each layout in turn and returns nil if none match
func parseTime(value string, layouts ...string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// lineItem builds a line item with clamped quantity; total falls back to unit * quantity
func lineItem(externalID, sku, name string, quantity int, unit, total decimal.Decimal) marketplace.OrderItem {
	if quantity < 0 {
		quantity = 0
	}
	if total.IsZero() && quantity > 0 {
		total = unit.Mul(decimal.NewFromInt(int64(quantity)))
	}
	return marketplace.OrderItem{
		ExternalItemID: externalID,
		SKU:            strings.TrimSpace(sku),
		Name:           strings.TrimSpace(name),
		Quantity:       quantity,
		UnitPrice:      unit,
		TotalPrice:     total,
	}
}
