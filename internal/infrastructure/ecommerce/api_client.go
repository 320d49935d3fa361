package ecommerce

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

// maxResponseSize is the maximum allowed response size from a marketplace API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// apiClient is the throttled HTTP transport shared by the marketplace adapters
type apiClient struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// newAPIClient creates a client limited to rps requests per second with the given burst.
// A non-positive rps disables throttling.
func newAPIClient(name string, timeout time.Duration, rps float64, burst int) *apiClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &apiClient{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// do waits for a rate limit token, executes the request and returns the status code and body.
// 204 No Content yields a nil body and no error.
func (c *apiClient) do(req *http.Request) (int, []byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return 0, nil, fmt.Errorf("%s: rate limiter: %w", c.name, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %v", marketplace.ErrMarketplaceUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: failed to read response: %w", c.name, err)
	}

	if err := statusError(c.name, resp.StatusCode); err != nil {
		return resp.StatusCode, body, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, body, nil
}

// statusError maps HTTP error statuses to domain errors
func statusError(name string, status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: HTTP %d", marketplace.ErrMarketplaceRateLimited, name, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: HTTP %d", marketplace.ErrMarketplaceAuthFailed, name, status)
	case status >= 500:
		return fmt.Errorf("%w: %s: HTTP %d", marketplace.ErrMarketplaceUnavailable, name, status)
	default:
		return fmt.Errorf("%w: %s: HTTP %d", marketplace.ErrMarketplaceRequestFailed, name, status)
	}
}
