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
	"sync"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

const (
	// amazonSigningService is the SigV4 service name for the Selling Partner API
	amazonSigningService = "execute-api"
	// emptyPayloadHash is the SHA-256 of an empty request body
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	// amazonMinLastUpdatedAge is how far in the past LastUpdatedAfter must be
	amazonMinLastUpdatedAge = 2 * time.Minute
	// tokenExpirySkew refreshes LWA tokens slightly before they expire
	tokenExpirySkew = 60 * time.Second
)

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// AmazonAdapter implements MarketplaceClient for Amazon seller accounts via the
// Selling Partner API orders v0 operations.
type AmazonAdapter struct {
	config   *AmazonConfig
	api      *apiClient
	tokenAPI *apiClient
	signer   *v4.Signer
	logger   *zap.Logger
	now      func() time.Time

	tokens map[int64]cachedToken
	mu     sync.Mutex // Protects tokens
}

// NewAmazonAdapter creates a new Amazon adapter with the given configuration
func NewAmazonAdapter(config *AmazonConfig, logger *zap.Logger) (*AmazonAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AmazonAdapter{
		config:   config,
		api:      newAPIClient("amazon", config.Timeout(), config.RequestsPerSecond, config.Burst),
		tokenAPI: newAPIClient("amazon-lwa", config.Timeout(), 0, 1),
		signer:   v4.NewSigner(),
		logger:   logger.Named("amazon"),
		now:      time.Now,
		tokens:   make(map[int64]cachedToken),
	}, nil
}

// Type implements MarketplaceClient
func (a *AmazonAdapter) Type() marketplace.ChannelType {
	return marketplace.ChannelTypeAmazon
}

// GetOrders pages through getOrders with NextToken and attaches each order's items.
// A failure on the first page is returned; a failure on a later page stops
// pagination and keeps the pages already collected.
func (a *AmazonAdapter) GetOrders(ctx context.Context, channel *marketplace.Channel, opts marketplace.FetchOptions) ([]marketplace.RawOrder, error) {
	creds, err := amazonCredentials(channel)
	if err != nil {
		return nil, err
	}

	log := a.logger.With(zap.Int64("channel_id", channel.ID))
	endpoint := creds.Endpoint
	if endpoint == "" {
		endpoint = a.config.DefaultEndpoint
	}

	pageSize := amazonMaxPageSize
	if opts.PageSize > 0 && opts.PageSize < pageSize {
		pageSize = opts.PageSize
	}

	since := a.lastUpdatedAfter(opts.ModifiedSince)

	var (
		orders    []AmazonOrder
		seen      = make(map[string]struct{})
		nextToken string
		pages     int
	)
	for page := 1; page <= a.config.MaxPages; page++ {
		query := url.Values{}
		query.Set("MarketplaceIds", strings.Join(creds.MarketplaceIDs, ","))
		if nextToken == "" {
			query.Set("LastUpdatedAfter", since.UTC().Format(time.RFC3339))
			query.Set("MaxResultsPerPage", strconv.Itoa(pageSize))
		} else {
			query.Set("NextToken", nextToken)
		}

		var resp AmazonGetOrdersResponse
		err := a.get(ctx, channel.ID, creds, endpoint, "/orders/v0/orders", query, &resp)
		if err == nil && !resp.IsSuccess() {
			err = fmt.Errorf("%w: amazon: %s", marketplace.ErrMarketplaceRequestFailed, resp.Errors[0].Message)
		}
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Warn("Amazon orders page failed, keeping pages already fetched",
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}

		pages++
		if resp.Payload == nil {
			break
		}
		for _, o := range resp.Payload.Orders {
			if _, ok := seen[o.AmazonOrderID]; ok {
				continue
			}
			seen[o.AmazonOrderID] = struct{}{}
			orders = append(orders, o)
		}
		nextToken = resp.Payload.NextToken
		if nextToken == "" {
			break
		}
	}

	raw := make([]marketplace.RawOrder, 0, len(orders))
	for _, order := range orders {
		items, err := a.listOrderItems(ctx, channel.ID, creds, endpoint, order.AmazonOrderID)
		if err != nil {
			log.Warn("Failed to fetch Amazon order items",
				zap.String("amazon_order_id", order.AmazonOrderID),
				zap.Error(err),
			)
		}
		raw = append(raw, marketplace.RawOrder{
			Source:     marketplace.ChannelTypeAmazon,
			ExternalID: order.AmazonOrderID,
			Payload:    &AmazonOrderPayload{Order: order, Items: items},
		})
	}

	log.Info("Amazon orders fetched",
		zap.Int("pages", pages),
		zap.Int("orders", len(raw)),
		zap.Time("last_updated_after", since),
	)

	return raw, nil
}

// lastUpdatedAfter returns the mandatory lower bound for getOrders
func (a *AmazonAdapter) lastUpdatedAfter(modifiedSince *time.Time) time.Time {
	now := a.now()
	since := now.Add(-a.config.InitialLookback)
	if modifiedSince != nil {
		since = *modifiedSince
	}
	if latest := now.Add(-amazonMinLastUpdatedAge); since.After(latest) {
		since = latest
	}
	return since
}

// listOrderItems pages through the items of one order
func (a *AmazonAdapter) listOrderItems(ctx context.Context, channelID int64, creds *AmazonCredentials, endpoint, orderID string) ([]AmazonOrderItem, error) {
	path := "/orders/v0/orders/" + url.PathEscape(orderID) + "/orderItems"

	var items []AmazonOrderItem
	nextToken := ""
	for page := 1; page <= a.config.MaxPages; page++ {
		var query url.Values
		if nextToken != "" {
			query = url.Values{"NextToken": []string{nextToken}}
		}

		var resp AmazonGetOrderItemsResponse
		if err := a.get(ctx, channelID, creds, endpoint, path, query, &resp); err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("%w: amazon: %s", marketplace.ErrMarketplaceRequestFailed, resp.Errors[0].Message)
		}
		if resp.Payload == nil {
			break
		}
		items = append(items, resp.Payload.OrderItems...)
		nextToken = resp.Payload.NextToken
		if nextToken == "" {
			break
		}
	}
	if items == nil {
		items = make([]AmazonOrderItem, 0)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// get performs an authenticated GET and decodes the JSON body into out
func (a *AmazonAdapter) get(ctx context.Context, channelID int64, creds *AmazonCredentials, endpoint, path string, query url.Values, out any) error {
	token, err := a.accessToken(ctx, channelID, creds)
	if err != nil {
		return err
	}

	target := strings.TrimRight(endpoint, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("amazon: failed to create request: %w", err)
	}
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("Accept", "application/json")

	if creds.SignsRequests() {
		if err := a.sign(ctx, req, creds); err != nil {
			return err
		}
	}

	_, body, err := a.api.do(req)
	if err != nil {
		if errors.Is(err, marketplace.ErrMarketplaceAuthFailed) {
			a.invalidateToken(channelID)
		}
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Join(marketplace.ErrMalformedPayload, fmt.Errorf("amazon: failed to parse %s: %w", path, err))
	}
	return nil
}

// sign adds an AWS SigV4 signature to the request
func (a *AmazonAdapter) sign(ctx context.Context, req *http.Request, creds *AmazonCredentials) error {
	provider := credentials.NewStaticCredentialsProvider(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, "")
	awsCreds, err := provider.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("amazon: failed to load signing credentials: %w", err)
	}
	if err := a.signer.SignHTTP(ctx, awsCreds, req, emptyPayloadHash, amazonSigningService, creds.AWSRegion, a.now()); err != nil {
		return fmt.Errorf("amazon: failed to sign request: %w", err)
	}
	return nil
}

// accessToken returns a cached LWA access token or exchanges the refresh token for a new one
func (a *AmazonAdapter) accessToken(ctx context.Context, channelID int64, creds *AmazonCredentials) (string, error) {
	a.mu.Lock()
	cached, ok := a.tokens[channelID]
	a.mu.Unlock()
	if ok && a.now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("amazon: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, body, err := a.tokenAPI.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", marketplace.ErrMarketplaceAuthFailed, err)
	}

	var resp AmazonTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Join(marketplace.ErrMalformedPayload, fmt.Errorf("amazon: failed to parse token response: %w", err))
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: %s %s", marketplace.ErrMarketplaceAuthFailed, resp.Error, resp.ErrorDescription)
	}

	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if expiresIn > tokenExpirySkew {
		expiresIn -= tokenExpirySkew
	}
	a.mu.Lock()
	a.tokens[channelID] = cachedToken{value: resp.AccessToken, expiresAt: a.now().Add(expiresIn)}
	a.mu.Unlock()

	return resp.AccessToken, nil
}

// invalidateToken drops the cached token for the channel
func (a *AmazonAdapter) invalidateToken(channelID int64) {
	a.mu.Lock()
	delete(a.tokens, channelID)
	a.mu.Unlock()
}

// Ensure AmazonAdapter implements MarketplaceClient
var _ marketplace.MarketplaceClient = (*AmazonAdapter)(nil)
