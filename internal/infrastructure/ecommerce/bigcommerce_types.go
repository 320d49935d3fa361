package ecommerce

// ---------------------------------------------------------------------------
// BigCommerce Order Status Enumeration
// ---------------------------------------------------------------------------

// BigCommerceStatus is a BigCommerce order status id with its default label
type BigCommerceStatus struct {
	ID   int
	Name string
}

// bigCommerceStatuses lists every status partition queried during a sync.
// The v2 orders endpoint filters on a single status_id per request.
// Status 0 (Incomplete) is an abandoned checkout, not an order, and is skipped.
var bigCommerceStatuses = []BigCommerceStatus{
	{ID: 1, Name: "Pending"},
	{ID: 2, Name: "Shipped"},
	{ID: 3, Name: "Partially Shipped"},
	{ID: 4, Name: "Refunded"},
	{ID: 5, Name: "Cancelled"},
	{ID: 6, Name: "Declined"},
	{ID: 7, Name: "Awaiting Payment"},
	{ID: 8, Name: "Awaiting Pickup"},
	{ID: 9, Name: "Awaiting Shipment"},
	{ID: 10, Name: "Completed"},
	{ID: 11, Name: "Awaiting Fulfillment"},
	{ID: 12, Name: "Manual Verification Required"},
	{ID: 13, Name: "Disputed"},
	{ID: 14, Name: "Partially Refunded"},
}

// bigCommerceStatusName returns the default label for a status id
func bigCommerceStatusName(id int) string {
	for _, s := range bigCommerceStatuses {
		if s.ID == id {
			return s.Name
		}
	}
	if id == 0 {
		return "Incomplete"
	}
	return ""
}

// ---------------------------------------------------------------------------
// BigCommerce v2 Order Types
// ---------------------------------------------------------------------------

// BigCommerceOrder is an order from GET /v2/orders.
// Money fields are decimal strings such as "225.0000".
type BigCommerceOrder struct {
	ID                  int64               `json:"id"`
	CustomerID          int64               `json:"customer_id"`
	DateCreated         string              `json:"date_created"`
	DateModified        string              `json:"date_modified"`
	StatusID            int                 `json:"status_id"`
	Status              string              `json:"status"`
	SubtotalExTax       string              `json:"subtotal_ex_tax"`
	SubtotalIncTax      string              `json:"subtotal_inc_tax"`
	TotalExTax          string              `json:"total_ex_tax"`
	TotalIncTax         string              `json:"total_inc_tax"`
	TotalTax            string              `json:"total_tax"`
	ShippingCostIncTax  string              `json:"shipping_cost_inc_tax"`
	DiscountAmount      string              `json:"discount_amount"`
	CouponDiscount      string              `json:"coupon_discount"`
	CurrencyCode        string              `json:"currency_code"`
	DefaultCurrencyCode string              `json:"default_currency_code"`
	PaymentStatus       string              `json:"payment_status"`
	PaymentMethod       string              `json:"payment_method"`
	BillingAddress      *BigCommerceAddress `json:"billing_address,omitempty"`
}

// BigCommerceAddress is a billing or shipping address
type BigCommerceAddress struct {
	ID             int64  `json:"id,omitempty"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Company        string `json:"company"`
	Street1        string `json:"street_1"`
	Street2        string `json:"street_2"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zip            string `json:"zip"`
	Country        string `json:"country"`
	CountryISO2    string `json:"country_iso2"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	ShippingMethod string `json:"shipping_method,omitempty"`
}

// BigCommerceProduct is a line item from GET /v2/orders/{id}/products
type BigCommerceProduct struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	BasePrice   string `json:"base_price"`
	PriceIncTax string `json:"price_inc_tax"`
	TotalIncTax string `json:"total_inc_tax"`
}

// BigCommerceOrderPayload is the RawOrder payload produced by the BigCommerce adapter.
// Products and ShippingAddresses are nil when their sub-resource request failed.
type BigCommerceOrderPayload struct {
	Order             BigCommerceOrder
	Products          []BigCommerceProduct
	ShippingAddresses []BigCommerceAddress
}
