package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// SecretManagerAdapter retrieves secrets from a secret management service.
// Implementations cache values with a TTL.
//
// Path format depends on implementation:
//   - AWS: "subscription-scheduler/shopify/client-secret"
//   - Vault: "secret/data/subscription-scheduler/shopify"
//   - Local: environment variable name or file path
type SecretManagerAdapter interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
	GetSecretVersion(ctx context.Context, path string, version string) (*Secret, error)
	PutSecret(ctx context.Context, path string, value string, metadata map[string]string) (version string, err error)
	DeleteSecret(ctx context.Context, path string) error
}
