package ecommerce

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

const (
	// BigCommerceAPIBaseURL is the production API host
	BigCommerceAPIBaseURL = "https://api.bigcommerce.com"

	bigCommerceMaxPageSize = 250
)

// Errors for BigCommerce configuration
var (
	ErrBigCommerceConfigMissingBaseURL = errors.New("bigcommerce: api base url is required")
)

// credentialValidator validates channel credential structs for all adapters
var credentialValidator = validator.New(validator.WithRequiredStructEnabled())

// BigCommerceConfig holds adapter-wide settings for the BigCommerce API
type BigCommerceConfig struct {
	// APIBaseURL is the API host, overridable for tests
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PageSize is the number of orders requested per page (max 250)
	PageSize int
	// MaxPagesPerStatus bounds pagination of a single status partition
	MaxPagesPerStatus int
	// RequestsPerSecond throttles outbound requests (0 disables throttling)
	RequestsPerSecond float64
	// Burst is the limiter burst size
	Burst int
}

// NewBigCommerceConfig creates a BigCommerce configuration with defaults
func NewBigCommerceConfig() *BigCommerceConfig {
	return &BigCommerceConfig{
		APIBaseURL:        BigCommerceAPIBaseURL,
		TimeoutSeconds:    30,
		PageSize:          bigCommerceMaxPageSize,
		MaxPagesPerStatus: 40,
		RequestsPerSecond: 5,
		Burst:             10,
	}
}

// Validate validates the configuration and fills defaults
func (c *BigCommerceConfig) Validate() error {
	if c.APIBaseURL == "" {
		return ErrBigCommerceConfigMissingBaseURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.PageSize <= 0 || c.PageSize > bigCommerceMaxPageSize {
		c.PageSize = bigCommerceMaxPageSize
	}
	if c.MaxPagesPerStatus <= 0 {
		c.MaxPagesPerStatus = 40
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// Timeout returns the HTTP timeout as a duration
func (c *BigCommerceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BigCommerceCredentials is the per-channel credential blob for a BigCommerce store
type BigCommerceCredentials struct {
	StoreHash   string `json:"store_hash" validate:"required,alphanum"`
	AccessToken string `json:"access_token" validate:"required"`
}

// bigCommerceCredentials decodes and validates the channel's credentials
func bigCommerceCredentials(channel *marketplace.Channel) (*BigCommerceCredentials, error) {
	var creds BigCommerceCredentials
	if err := channel.DecodeCredentials(&creds); err != nil {
		return nil, err
	}
	if err := credentialValidator.Struct(&creds); err != nil {
		return nil, errors.Join(marketplace.ErrInvalidCredentials, err)
	}
	return &creds, nil
}
