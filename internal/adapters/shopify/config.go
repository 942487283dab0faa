package shopify

import (
	"time"

	"github.com/kevin07696/subscription-scheduler/pkg/resilience"
)

// DefaultAPIVersion is the Admin REST API version orders are placed against
const DefaultAPIVersion = "2026-01"

// TokenTTL is how long a client-credentials token is trusted, kept under
// Shopify's 24h lifetime
const TokenTTL = 23 * time.Hour

// Config configures the Shopify order backend
type Config struct {
	// Store is the shop domain, e.g. "example.myshopify.com"
	Store     string
	APIKey    string
	APISecret string
	// AccessToken skips the client-credentials exchange when set
	AccessToken string
	APIVersion  string
	// BaseURL overrides https://<Store>, for tests
	BaseURL string
	// Country is written on shipping and billing addresses
	Country string

	RequestsPerSecond float64
	Burst             int

	// MaxRetries bounds the retries of one request
	MaxRetries int
	Backoff    resilience.BackoffStrategy
	Timeouts   *resilience.TimeoutConfig

	// Circuit breaker: open after BreakerFailures consecutive transient
	// failures, probe again after BreakerTimeout
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns a config for store with the documented REST limits
func DefaultConfig(store, apiKey, apiSecret string) Config {
	return Config{
		Store:             store,
		APIKey:            apiKey,
		APISecret:         apiSecret,
		APIVersion:        DefaultAPIVersion,
		Country:           "India",
		RequestsPerSecond: 2,
		Burst:             4,
		MaxRetries:        3,
		Backoff:           resilience.RateLimitBackoff(),
		Timeouts:          resilience.DefaultTimeoutConfig(),
		BreakerFailures:   5,
		BreakerTimeout:    30 * time.Second,
	}
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://" + c.Store
}
