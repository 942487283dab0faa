package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// ErrSecretNotFound is returned by the local manager for unknown paths
var ErrSecretNotFound = errors.New("secret not found")

// localSecretManager reads secrets from environment variables, falling back
// to files under basePath. For development only.
//
// Path "shopify/client-secret" maps to env var SHOPIFY_CLIENT_SECRET and to
// file <basePath>/shopify/client-secret.
type localSecretManager struct {
	lookupEnv func(string) (string, bool)
	logger    *zap.Logger
	basePath  string
}

// NewLocalSecretManager creates a local secret manager. basePath may be empty
// to read only from the environment.
func NewLocalSecretManager(basePath string, logger *zap.Logger) ports.SecretManagerAdapter {
	return &localSecretManager{
		lookupEnv: os.LookupEnv,
		logger:    logger,
		basePath:  basePath,
	}
}

func envName(path string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, path)
}

type fileSecret struct {
	Value     string            `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt string            `json:"created_at,omitempty"`
}

// GetSecret reads the secret from the environment or the filesystem.
// Files may hold plain text or a JSON {"value": ...} document.
func (m *localSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if v, ok := m.lookupEnv(envName(path)); ok {
		return &ports.Secret{Value: v, Version: "env"}, nil
	}
	if m.basePath == "" {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data, err := os.ReadFile(filepath.Join(m.basePath, filepath.Clean("/"+path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var fs fileSecret
	if err := json.Unmarshal(data, &fs); err == nil && fs.Value != "" {
		return &ports.Secret{
			Value:     fs.Value,
			Version:   "v1",
			Metadata:  fs.Tags,
			CreatedAt: fs.CreatedAt,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimRight(string(data), "\r\n"),
		Version: "v1",
	}, nil
}

// GetSecretVersion ignores version; local secrets are unversioned
func (m *localSecretManager) GetSecretVersion(ctx context.Context, path string, _ string) (*ports.Secret, error) {
	return m.GetSecret(ctx, path)
}

// PutSecret writes a JSON secret file under basePath
func (m *localSecretManager) PutSecret(ctx context.Context, path, value string, tags map[string]string) (string, error) {
	if m.basePath == "" {
		return "", fmt.Errorf("local secret manager has no base path")
	}
	filePath := filepath.Join(m.basePath, filepath.Clean("/"+path))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(fileSecret{
		Value:     value,
		Tags:      tags,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write secret: %w", err)
	}

	m.logger.Info("Stored secret on filesystem", zap.String("path", path))
	return "v1", nil
}

// DeleteSecret removes a secret file
func (m *localSecretManager) DeleteSecret(ctx context.Context, path string) error {
	if m.basePath == "" {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	if err := os.Remove(filepath.Join(m.basePath, filepath.Clean("/"+path))); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
