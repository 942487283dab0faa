package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

type mockSecretsManager struct {
	mock.Mock
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*secretsmanager.GetSecretValueOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSecretsManager) PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*secretsmanager.PutSecretValueOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSecretsManager) CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*secretsmanager.CreateSecretOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSecretsManager) DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*secretsmanager.DeleteSecretOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAWSAdapter_GetSecretIsCached(t *testing.T) {
	api := new(mockSecretsManager)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	api.On("GetSecretValue", mock.Anything, mock.MatchedBy(func(in *secretsmanager.GetSecretValueInput) bool {
		return aws.ToString(in.SecretId) == "scheduler/cron-secret" && in.VersionId == nil
	})).Return(&secretsmanager.GetSecretValueOutput{
		SecretString: aws.String("s3cr3t"),
		VersionId:    aws.String("v-1"),
		CreatedDate:  &created,
		ARN:          aws.String("arn:aws:secretsmanager:ap-south-1:1:secret:scheduler/cron-secret"),
		Name:         aws.String("scheduler/cron-secret"),
	}, nil).Once()

	a := newAWSAdapter(api, DefaultAWSConfig("ap-south-1"), zap.NewNop())

	for i := 0; i < 3; i++ {
		s, err := a.GetSecret(context.Background(), "scheduler/cron-secret")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", s.Value)
		assert.Equal(t, "v-1", s.Version)
		assert.Equal(t, "2026-01-02T03:04:05Z", s.CreatedAt)
		assert.Equal(t, "scheduler/cron-secret", s.Metadata["name"])
	}
	api.AssertExpectations(t)
}

func TestAWSAdapter_CacheDisabled(t *testing.T) {
	api := new(mockSecretsManager)
	api.On("GetSecretValue", mock.Anything, mock.Anything).
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String("v")}, nil).Twice()

	cfg := DefaultAWSConfig("ap-south-1")
	cfg.EnableCache = false
	a := newAWSAdapter(api, cfg, zap.NewNop())

	_, err := a.GetSecret(context.Background(), "p")
	require.NoError(t, err)
	_, err = a.GetSecret(context.Background(), "p")
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestAWSAdapter_PutFallsBackToCreateAndInvalidates(t *testing.T) {
	api := new(mockSecretsManager)
	api.On("GetSecretValue", mock.Anything, mock.Anything).
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String("old")}, nil).Once()
	api.On("PutSecretValue", mock.Anything, mock.Anything).
		Return(nil, errors.New("ResourceNotFoundException")).Once()
	api.On("CreateSecret", mock.Anything, mock.MatchedBy(func(in *secretsmanager.CreateSecretInput) bool {
		return aws.ToString(in.Name) == "p" && aws.ToString(in.SecretString) == "new" && len(in.Tags) == 1
	})).Return(&secretsmanager.CreateSecretOutput{VersionId: aws.String("v-2")}, nil).Once()
	api.On("GetSecretValue", mock.Anything, mock.Anything).
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String("new")}, nil).Once()

	a := newAWSAdapter(api, DefaultAWSConfig("ap-south-1"), zap.NewNop())

	s, err := a.GetSecret(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "old", s.Value)

	version, err := a.PutSecret(context.Background(), "p", "new", map[string]string{"owner": "scheduler"})
	require.NoError(t, err)
	assert.Equal(t, "v-2", version)

	s, err = a.GetSecret(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "new", s.Value)
	api.AssertExpectations(t)
}

func TestAWSAdapter_GetSecretError(t *testing.T) {
	api := new(mockSecretsManager)
	api.On("GetSecretValue", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied"))

	a := newAWSAdapter(api, DefaultAWSConfig("ap-south-1"), zap.NewNop())
	_, err := a.GetSecret(context.Background(), "p")
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestLocalSecretManager(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{"SHOPIFY_CLIENT_SECRET": "from-env"}

	m := NewLocalSecretManager(dir, zap.NewNop()).(*localSecretManager)
	m.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	ctx := context.Background()

	s, err := m.GetSecret(ctx, "shopify/client-secret")
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.Value)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "smtp"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smtp", "password"), []byte("plain-pw\n"), 0o600))
	s, err = m.GetSecret(ctx, "smtp/password")
	require.NoError(t, err)
	assert.Equal(t, "plain-pw", s.Value)

	_, err = m.PutSecret(ctx, "cron/secret", "json-value", map[string]string{"env": "dev"})
	require.NoError(t, err)
	s, err = m.GetSecret(ctx, "cron/secret")
	require.NoError(t, err)
	assert.Equal(t, "json-value", s.Value)
	assert.Equal(t, "dev", s.Metadata["env"])

	require.NoError(t, m.DeleteSecret(ctx, "cron/secret"))
	_, err = m.GetSecret(ctx, "cron/secret")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = m.GetSecret(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "SHOPIFY_CLIENT_SECRET", envName("shopify/client-secret"))
	assert.Equal(t, "CRON_SECRET", envName("CRON_SECRET"))
	assert.Equal(t, "SMTP_PASSWORD_2", envName("smtp.password.2"))
}

type staticManager struct {
	values map[string]string
}

func (s staticManager) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	v, ok := s.values[path]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return &ports.Secret{Value: v}, nil
}

func (s staticManager) GetSecretVersion(ctx context.Context, path, _ string) (*ports.Secret, error) {
	return s.GetSecret(ctx, path)
}

func (staticManager) PutSecret(context.Context, string, string, map[string]string) (string, error) {
	return "", nil
}

func (staticManager) DeleteSecret(context.Context, string) error { return nil }

func TestResolveAll(t *testing.T) {
	mgr := staticManager{values: map[string]string{"cron": "resolved"}}

	plain := "literal"
	ref := "secret://cron"
	require.NoError(t, ResolveAll(context.Background(), mgr, &plain, &ref))
	assert.Equal(t, "literal", plain)
	assert.Equal(t, "resolved", ref)

	missing := "secret://nope"
	assert.ErrorIs(t, ResolveAll(context.Background(), mgr, &missing), ErrSecretNotFound)

	_, err := Resolve(context.Background(), nil, "secret://cron")
	assert.Error(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), ProviderConfig{Provider: "gcp"}, zap.NewNop())
	assert.Error(t, err)

	mgr, err := New(context.Background(), ProviderConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestVaultAdapter_KVv2(t *testing.T) {
	var reads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/secret/data/scheduler/shopify":
			reads.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"data":{"value":"shpss_123","store":"demo"},"metadata":{"version":3,"created_time":"2026-01-01T00:00:00Z"}}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/v1/secret/data/scheduler/shopify":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"version":4}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := DefaultVaultConfig(srv.URL)
	cfg.Token = "root-token"
	mgr, err := NewVaultAdapter(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	s, err := mgr.GetSecret(context.Background(), "scheduler/shopify")
	require.NoError(t, err)
	assert.Equal(t, "shpss_123", s.Value)
	assert.Equal(t, "3", s.Version)
	assert.Equal(t, "demo", s.Metadata["store"])

	_, err = mgr.GetSecret(context.Background(), "scheduler/shopify")
	require.NoError(t, err)
	assert.Equal(t, int32(1), reads.Load())

	version, err := mgr.PutSecret(context.Background(), "scheduler/shopify", "shpss_456", nil)
	require.NoError(t, err)
	assert.Equal(t, "4", version)

	_, err = mgr.GetSecret(context.Background(), "scheduler/shopify")
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())

	_, err = mgr.GetSecret(context.Background(), "scheduler/missing")
	assert.Error(t, err)
}

func TestVaultAdapter_RequiresToken(t *testing.T) {
	cfg := DefaultVaultConfig("http://127.0.0.1:1")
	_, err := NewVaultAdapter(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
