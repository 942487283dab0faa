package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// RefPrefix marks a config value that names a secret instead of holding it
const RefPrefix = "secret://"

// ProviderConfig selects and configures a secret backend
type ProviderConfig struct {
	Provider  string // "local", "aws", "vault"
	LocalPath string
	AWS       *AWSConfig
	Vault     *VaultConfig
}

// New builds the configured secret manager
func New(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalSecretManager(cfg.LocalPath, logger), nil
	case "aws":
		if cfg.AWS == nil {
			return nil, fmt.Errorf("aws secret provider needs AWS config")
		}
		return NewAWSAdapter(ctx, cfg.AWS, logger)
	case "vault":
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault secret provider needs Vault config")
		}
		return NewVaultAdapter(ctx, cfg.Vault, logger)
	default:
		return nil, fmt.Errorf("unknown secret provider %q", cfg.Provider)
	}
}

// Resolve returns value unchanged unless it is a "secret://<path>" reference,
// in which case the secret at path is fetched
func Resolve(ctx context.Context, mgr ports.SecretManagerAdapter, value string) (string, error) {
	path, ok := strings.CutPrefix(value, RefPrefix)
	if !ok {
		return value, nil
	}
	if mgr == nil {
		return "", fmt.Errorf("secret reference %q but no secret manager configured", value)
	}
	secret, err := mgr.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}

// ResolveAll resolves every referenced field in place
func ResolveAll(ctx context.Context, mgr ports.SecretManagerAdapter, fields ...*string) error {
	for _, f := range fields {
		resolved, err := Resolve(ctx, mgr, *f)
		if err != nil {
			return err
		}
		*f = resolved
	}
	return nil
}
