package ecommerce

// ---------------------------------------------------------------------------
// Selling Partner API Response Types
// ---------------------------------------------------------------------------

// AmazonError is one entry of an SP-API error list
type AmazonError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// AmazonResponse is the error wrapper shared by SP-API responses
type AmazonResponse struct {
	Errors []AmazonError `json:"errors,omitempty"`
}

// IsSuccess returns true if the response carries no errors
func (r *AmazonResponse) IsSuccess() bool {
	return len(r.Errors) == 0
}

// AmazonGetOrdersResponse is the response for GET /orders/v0/orders
type AmazonGetOrdersResponse struct {
	AmazonResponse
	Payload *AmazonOrdersPayload `json:"payload,omitempty"`
}

// AmazonOrdersPayload is one page of orders
type AmazonOrdersPayload struct {
	Orders            []AmazonOrder `json:"Orders"`
	NextToken         string        `json:"NextToken,omitempty"`
	LastUpdatedBefore string        `json:"LastUpdatedBefore,omitempty"`
	CreatedBefore     string        `json:"CreatedBefore,omitempty"`
}

// AmazonMoney is an SP-API money value
type AmazonMoney struct {
	CurrencyCode string `json:"CurrencyCode,omitempty"`
	Amount       string `json:"Amount,omitempty"`
}

// AmazonBuyerInfo holds the buyer fields of an order
type AmazonBuyerInfo struct {
	BuyerEmail string `json:"BuyerEmail,omitempty"`
	BuyerName  string `json:"BuyerName,omitempty"`
}

// AmazonAddress is an SP-API postal address
type AmazonAddress struct {
	Name          string `json:"Name,omitempty"`
	CompanyName   string `json:"CompanyName,omitempty"`
	AddressLine1  string `json:"AddressLine1,omitempty"`
	AddressLine2  string `json:"AddressLine2,omitempty"`
	City          string `json:"City,omitempty"`
	StateOrRegion string `json:"StateOrRegion,omitempty"`
	PostalCode    string `json:"PostalCode,omitempty"`
	CountryCode   string `json:"CountryCode,omitempty"`
	Phone         string `json:"Phone,omitempty"`
}

// AmazonOrder is an order from the getOrders operation
type AmazonOrder struct {
	AmazonOrderID      string           `json:"AmazonOrderId"`
	SellerOrderID      string           `json:"SellerOrderId,omitempty"`
	PurchaseDate       string           `json:"PurchaseDate"`
	LastUpdateDate     string           `json:"LastUpdateDate"`
	OrderStatus        string           `json:"OrderStatus"`
	FulfillmentChannel string           `json:"FulfillmentChannel,omitempty"`
	ShipServiceLevel   string           `json:"ShipServiceLevel,omitempty"`
	OrderTotal         *AmazonMoney     `json:"OrderTotal,omitempty"`
	PaymentMethod      string           `json:"PaymentMethod,omitempty"`
	MarketplaceID      string           `json:"MarketplaceId,omitempty"`
	BuyerInfo          *AmazonBuyerInfo `json:"BuyerInfo,omitempty"`
	ShippingAddress    *AmazonAddress   `json:"ShippingAddress,omitempty"`
}

// AmazonGetOrderItemsResponse is the response for GET /orders/v0/orders/{id}/orderItems
type AmazonGetOrderItemsResponse struct {
	AmazonResponse
	Payload *AmazonOrderItemsPayload `json:"payload,omitempty"`
}

// AmazonOrderItemsPayload is one page of order items
type AmazonOrderItemsPayload struct {
	AmazonOrderID string            `json:"AmazonOrderId"`
	OrderItems    []AmazonOrderItem `json:"OrderItems"`
	NextToken     string            `json:"NextToken,omitempty"`
}

// AmazonOrderItem is one line of an Amazon order.
// ItemPrice is the price for the whole quantity, not per unit.
type AmazonOrderItem struct {
	ASIN              string       `json:"ASIN"`
	SellerSKU         string       `json:"SellerSKU,omitempty"`
	OrderItemID       string       `json:"OrderItemId"`
	Title             string       `json:"Title,omitempty"`
	QuantityOrdered   int          `json:"QuantityOrdered"`
	ItemPrice         *AmazonMoney `json:"ItemPrice,omitempty"`
	ItemTax           *AmazonMoney `json:"ItemTax,omitempty"`
	ShippingPrice     *AmazonMoney `json:"ShippingPrice,omitempty"`
	ShippingTax       *AmazonMoney `json:"ShippingTax,omitempty"`
	PromotionDiscount *AmazonMoney `json:"PromotionDiscount,omitempty"`
}

// AmazonTokenResponse is the LWA token exchange response
type AmazonTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AmazonOrderPayload is the RawOrder payload produced by the Amazon adapter.
// Items is nil when the orderItems request failed.
type AmazonOrderPayload struct {
	Order AmazonOrder
	Items []AmazonOrderItem
}
