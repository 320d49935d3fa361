package ecommerce

import (
	"errors"
	"time"

	"github.com/erp/marketsync/internal/domain/marketplace"
)

const (
	// AmazonNAEndpoint is the Selling Partner API endpoint for North America
	AmazonNAEndpoint = "https://sellingpartnerapi-na.amazon.com"
	// AmazonEUEndpoint is the Selling Partner API endpoint for Europe
	AmazonEUEndpoint = "https://sellingpartnerapi-eu.amazon.com"
	// AmazonFEEndpoint is the Selling Partner API endpoint for the Far East
	AmazonFEEndpoint = "https://sellingpartnerapi-fe.amazon.com"
	// AmazonTokenURL is the Login with Amazon token endpoint
	AmazonTokenURL = "https://api.amazon.com/auth/o2/token"

	amazonMaxPageSize = 100
)

// Errors for Amazon configuration
var (
	ErrAmazonConfigMissingEndpoint = errors.New("amazon: default endpoint is required")
	ErrAmazonConfigMissingTokenURL = errors.New("amazon: token url is required")
)

// AmazonConfig holds adapter-wide settings for the Selling Partner API
type AmazonConfig struct {
	// DefaultEndpoint is used when a channel does not name its regional endpoint
	DefaultEndpoint string
	// TokenURL is the LWA token exchange endpoint
	TokenURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// InitialLookback bounds the first sync of a channel (LastUpdatedAfter is mandatory)
	InitialLookback time.Duration
	// MaxPages bounds NextToken pagination per sync
	MaxPages int
	// RequestsPerSecond throttles outbound requests (0 disables throttling)
	RequestsPerSecond float64
	// Burst is the limiter burst size
	Burst int
}

// NewAmazonConfig creates an Amazon configuration with defaults.
// The getOrders operation is limited by Amazon to a low steady rate with a burst of 20.
func NewAmazonConfig() *AmazonConfig {
	return &AmazonConfig{
		DefaultEndpoint:   AmazonNAEndpoint,
		TokenURL:          AmazonTokenURL,
		TimeoutSeconds:    30,
		InitialLookback:   30 * 24 * time.Hour,
		MaxPages:          50,
		RequestsPerSecond: 0.5,
		Burst:             20,
	}
}

// Validate validates the configuration and fills defaults
func (c *AmazonConfig) Validate() error {
	if c.DefaultEndpoint == "" {
		return ErrAmazonConfigMissingEndpoint
	}
	if c.TokenURL == "" {
		return ErrAmazonConfigMissingTokenURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = 30 * 24 * time.Hour
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// Timeout returns the HTTP timeout as a duration
func (c *AmazonConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AmazonCredentials is the per-channel credential blob for an Amazon seller account.
// The AWS keys are optional and enable SigV4 request signing.
type AmazonCredentials struct {
	RefreshToken       string   `json:"refresh_token" validate:"required"`
	ClientID           string   `json:"client_id" validate:"required"`
	ClientSecret       string   `json:"client_secret" validate:"required"`
	MarketplaceIDs     []string `json:"marketplace_ids" validate:"required,min=1,dive,required"`
	Endpoint           string   `json:"endpoint" validate:"omitempty,url"`
	AWSRegion          string   `json:"aws_region"`
	AWSAccessKeyID     string   `json:"aws_access_key_id" validate:"required_with=AWSSecretAccessKey"`
	AWSSecretAccessKey string   `json:"aws_secret_access_key" validate:"required_with=AWSAccessKeyID"`
}

// SignsRequests reports whether SigV4 signing is configured
func (c *AmazonCredentials) SignsRequests() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

// amazonCredentials decodes and validates the channel's credentials
func amazonCredentials(channel *marketplace.Channel) (*AmazonCredentials, error) {
	var creds AmazonCredentials
	if err := channel.DecodeCredentials(&creds); err != nil {
		return nil, err
	}
	if err := credentialValidator.Struct(&creds); err != nil {
		return nil, errors.Join(marketplace.ErrInvalidCredentials, err)
	}
	if creds.AWSRegion == "" {
		creds.AWSRegion = "us-east-1"
	}
	return &creds, nil
}
