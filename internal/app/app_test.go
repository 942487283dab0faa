package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/adapters/memory"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/sqlite"
	"github.com/kevin07696/subscription-scheduler/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			HTTPPort:        8080,
			GRPCPort:        50051,
			MetricsPort:     9090,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:   "memory",
			MaxConns: 1,
		},
		Cron: config.CronConfig{
			Secret:    "0123456789abcdef",
			RateLimit: 1,
			Burst:     1,
		},
		Scheduler: config.SchedulerConfig{
			LeadTime:       24 * time.Hour,
			MondayLeadTime: 48 * time.Hour,
			Tolerance:      30 * time.Second,
			Horizon:        72 * time.Hour,
			LockTTL:        time.Minute,
			Concurrency:    1,
		},
		Shopify: config.ShopifyConfig{
			Store:             "example.myshopify.com",
			AccessToken:       "shpat_test",
			RequestsPerSecond: 2,
		},
		Notifications: config.NotificationConfig{
			Transport: "log",
			QueueSize: 8,
			Workers:   1,
		},
		Secrets: config.SecretsConfig{Provider: "local"},
		Logger:  config.LoggerConfig{Level: "info"},
	}
}

func TestNew_MemoryStore(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.IsType(t, &memory.Store{}, a.Store)
	assert.NotNil(t, a.Runner)
	assert.NotNil(t, a.Reconciler)
	assert.NotNil(t, a.Subscriptions)
	assert.NotNil(t, a.Orders)
	assert.Equal(t, "healthy", a.Health.Check(context.Background()).Status)

	report, err := a.Runner.RunOnce(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	require.NoError(t, a.Close(context.Background()))
}

func TestNew_SQLiteStoreMigrates(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "scheduler.db")

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, &sqlite.Store{}, a.Store)
	assert.NoError(t, a.Store.Ping(context.Background()))

	_, err = a.Store.FindDueSubscriptions(context.Background(), time.Now(), 72*time.Hour)
	assert.NoError(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "oracle"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("SCHEDULER_CRON_SECRET", "resolved-cron-secret-value")
	t.Setenv("SCHEDULER_SHOPIFY_TOKEN", "shpat_resolved")

	cfg := testConfig()
	cfg.Cron.Secret = "secret://scheduler/cron-secret"
	cfg.Shopify.AccessToken = "secret://scheduler/shopify-token"

	require.NoError(t, ResolveSecrets(context.Background(), cfg, zap.NewNop()))
	assert.Equal(t, "resolved-cron-secret-value", cfg.Cron.Secret)
	assert.Equal(t, "shpat_resolved", cfg.Shopify.AccessToken)
}

func TestResolveSecrets_RevalidatesResolvedValues(t *testing.T) {
	t.Setenv("SCHEDULER_CRON_SECRET", "short")

	cfg := testConfig()
	cfg.Cron.Secret = "secret://scheduler/cron-secret"

	err := ResolveSecrets(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "Cron.Secret")
}

func TestResolveSecrets_Missing(t *testing.T) {
	cfg := testConfig()
	cfg.Cron.Secret = "secret://scheduler/does-not-exist"

	err := ResolveSecrets(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "resolve secrets")
}
