package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

// BigCommerceAdapter implements MarketplaceClient for BigCommerce stores (v2 orders API).
// Store credentials are read from each channel, so one adapter serves every
// BigCommerce channel.
type BigCommerceAdapter struct {
	config *BigCommerceConfig
	api    *apiClient
	logger *zap.Logger
}

// NewBigCommerceAdapter creates a new BigCommerce adapter with the given configuration
func NewBigCommerceAdapter(config *BigCommerceConfig, logger *zap.Logger) (*BigCommerceAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &BigCommerceAdapter{
		config: config,
		api:    newAPIClient("bigcommerce", config.Timeout(), config.RequestsPerSecond, config.Burst),
		logger: logger.Named("bigcommerce"),
	}, nil
}

// Type implements MarketplaceClient
func (a *BigCommerceAdapter) Type() marketplace.ChannelType {
	return marketplace.ChannelTypeBigCommerce
}

// GetOrders fetches orders across every status partition and returns each order once.
// A failed partition is logged and skipped; an error is returned only when every
// partition failed.
func (a *BigCommerceAdapter) GetOrders(ctx context.Context, channel *marketplace.Channel, opts marketplace.FetchOptions) ([]marketplace.RawOrder, error) {
	creds, err := bigCommerceCredentials(channel)
	if err != nil {
		return nil, err
	}

	log := a.logger.With(zap.Int64("channel_id", channel.ID))
	pageSize := a.config.PageSize
	if opts.PageSize > 0 && opts.PageSize < pageSize {
		pageSize = opts.PageSize
	}

	var (
		collected    []BigCommerceOrder
		failed       int
		lastErr      error
		statusCounts = make(map[string]int, len(bigCommerceStatuses))
	)
	for _, status := range bigCommerceStatuses {
		orders, err := a.listOrdersByStatus(ctx, creds, status.ID, pageSize, opts.ModifiedSince)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failed++
			lastErr = err
			log.Warn("Failed to fetch BigCommerce status partition",
				zap.Int("status_id", status.ID),
				zap.String("status", status.Name),
				zap.Error(err),
			)
			continue
		}
		statusCounts[status.Name] = len(orders)
		collected = append(collected, orders...)
	}

	if failed == len(bigCommerceStatuses) {
		return nil, fmt.Errorf("bigcommerce: all %d status partitions failed: %w", failed, lastErr)
	}

	unique := dedupBigCommerceOrders(collected)

	raw := make([]marketplace.RawOrder, 0, len(unique))
	for _, order := range unique {
		payload := &BigCommerceOrderPayload{Order: order}

		products, err := a.listOrderProducts(ctx, creds, order.ID)
		if err != nil {
			log.Warn("Failed to fetch BigCommerce order products",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
		}
		payload.Products = products

		addresses, err := a.listShippingAddresses(ctx, creds, order.ID)
		if err != nil {
			log.Warn("Failed to fetch BigCommerce shipping addresses",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
		}
		payload.ShippingAddresses = addresses

		raw = append(raw, marketplace.RawOrder{
			Source:     marketplace.ChannelTypeBigCommerce,
			ExternalID: strconv.FormatInt(order.ID, 10),
			Payload:    payload,
		})
	}

	log.Info("BigCommerce orders fetched",
		zap.Int("fetched", len(collected)),
		zap.Int("unique", len(unique)),
		zap.Int("failed_partitions", failed),
		zap.Any("status_counts", statusCounts),
	)

	return raw, nil
}

// dedupBigCommerceOrders keeps the first occurrence of each order id, preserving order
func dedupBigCommerceOrders(orders []BigCommerceOrder) []BigCommerceOrder {
	seen := make(map[int64]struct{}, len(orders))
	unique := make([]BigCommerceOrder, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		seen[o.ID] = struct{}{}
		unique = append(unique, o)
	}
	return unique
}

// listOrdersByStatus pages through one status partition until a short page
func (a *BigCommerceAdapter) listOrdersByStatus(ctx context.Context, creds *BigCommerceCredentials, statusID, pageSize int, modifiedSince *time.Time) ([]BigCommerceOrder, error) {
	var all []BigCommerceOrder
	for page := 1; page <= a.config.MaxPagesPerStatus; page++ {
		query := url.Values{}
		query.Set("status_id", strconv.Itoa(statusID))
		query.Set("page", strconv.Itoa(page))
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("sort", "id:asc")
		if modifiedSince != nil {
			query.Set("min_date_modified", modifiedSince.UTC().Format(time.RFC3339))
		}

		var orders []BigCommerceOrder
		if err := a.get(ctx, creds, "/orders", query, &orders); err != nil {
			return all, err
		}
		all = append(all, orders...)
		if len(orders) < pageSize {
			return all, nil
		}
	}
	a.logger.Warn("BigCommerce pagination limit reached",
		zap.Int("status_id", statusID),
		zap.Int("max_pages", a.config.MaxPagesPerStatus),
	)
	return all, nil
}

// listOrderProducts returns the line items of an order
func (a *BigCommerceAdapter) listOrderProducts(ctx context.Context, creds *BigCommerceCredentials, orderID int64) ([]BigCommerceProduct, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(bigCommerceMaxPageSize))

	products := make([]BigCommerceProduct, 0)
	if err := a.get(ctx, creds, fmt.Sprintf("/orders/%d/products", orderID), query, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// listShippingAddresses returns the shipping addresses of an order
func (a *BigCommerceAdapter) listShippingAddresses(ctx context.Context, creds *BigCommerceCredentials, orderID int64) ([]BigCommerceAddress, error) {
	addresses := make([]BigCommerceAddress, 0)
	if err := a.get(ctx, creds, fmt.Sprintf("/orders/%d/shipping_addresses", orderID), nil, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// get performs a GET against the store's v2 API and decodes the JSON body into out.
// An empty body (204 No Content) leaves out untouched.
func (a *BigCommerceAdapter) get(ctx context.Context, creds *BigCommerceCredentials, path string, query url.Values, out any) error {
	endpoint := strings.TrimRight(a.config.APIBaseURL, "/") + "/stores/" + creds.StoreHash + "/v2" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("bigcommerce: failed to create request: %w", err)
	}
	req.Header.Set("X-Auth-Token", creds.AccessToken)
	req.Header.Set("Accept", "application/json")

	_, body, err := a.api.do(req)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Join(marketplace.ErrMalformedPayload, fmt.Errorf("bigcommerce: failed to parse %s: %w", path, err))
	}
	return nil
}

// Ensure BigCommerceAdapter implements MarketplaceClient
var _ marketplace.MarketplaceClient = (*BigCommerceAdapter)(nil)
