// Package app wires configuration into the store, order backend, notifier
// and services shared by the server and the scheduler CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/adapters/lock"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/memory"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/notify"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/postgres"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/secrets"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/shopify"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/sqlite"
	"github.com/kevin07696/subscription-scheduler/internal/config"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/internal/schedule"
	"github.com/kevin07696/subscription-scheduler/internal/services/notification"
	"github.com/kevin07696/subscription-scheduler/internal/services/orders"
	"github.com/kevin07696/subscription-scheduler/internal/services/scheduler"
	"github.com/kevin07696/subscription-scheduler/internal/services/subscription"
	pkghttp "github.com/kevin07696/subscription-scheduler/pkg/http"
	"github.com/kevin07696/subscription-scheduler/pkg/observability"
	"github.com/kevin07696/subscription-scheduler/pkg/resilience"
	"github.com/kevin07696/subscription-scheduler/pkg/security"
)

// Store is the persistence port plus the liveness check every adapter offers
type Store interface {
	ports.Store
	observability.Pinger
}

// closer is released when the app shuts down, in reverse acquisition order
type closer struct {
	fn   func(ctx context.Context) error
	name string
}

// App holds the wired dependencies
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Store         Store
	Backend       ports.OrderBackend
	Notifier      ports.Notifier
	Runner        *scheduler.Runner
	Reconciler    *scheduler.Reconciler
	Subscriptions *subscription.Service
	Orders        *orders.Service
	Health        *observability.HealthChecker
	Timeouts      *resilience.TimeoutConfig
	closers       []closer
}

// ResolveSecrets replaces secret:// references in cfg and re-validates it
func ResolveSecrets(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mgr, err := secrets.New(ctx, secrets.ProviderConfig{
		Provider:  cfg.Secrets.Provider,
		LocalPath: cfg.Secrets.LocalPath,
		AWS:       awsConfig(cfg.Secrets),
		Vault:     vaultConfig(cfg.Secrets),
	}, logger)
	if err != nil {
		return fmt.Errorf("init secret manager: %w", err)
	}
	if err := secrets.ResolveAll(ctx, mgr, cfg.SecretFields()...); err != nil {
		return fmt.Errorf("resolve secrets: %w", err)
	}
	return cfg.Validate()
}

// New builds every dependency from cfg. On error, whatever was already
// opened is closed before returning.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Timeouts: resilience.DefaultTimeoutConfig(),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	portsLogger := security.NewZapLogger(logger)

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	a.Health = observability.NewHealthChecker(a.Store)

	locker, err := a.initLocker(ctx, portsLogger)
	if err != nil {
		return nil, err
	}

	a.Backend = a.initBackend(portsLogger)

	if err := a.initNotifier(portsLogger); err != nil {
		return nil, err
	}

	window := schedule.OrderWindow{
		LeadTime:       cfg.Scheduler.LeadTime,
		MondayLeadTime: cfg.Scheduler.MondayLeadTime,
		Tolerance:      cfg.Scheduler.Tolerance,
	}

	a.Reconciler = scheduler.NewReconciler(a.Store, a.Backend, portsLogger)
	a.Runner = scheduler.NewRunner(a.Store, a.Backend, a.Notifier, portsLogger, scheduler.Config{
		Window:            window,
		Horizon:           cfg.Scheduler.Horizon,
		LockTTL:           cfg.Scheduler.LockTTL,
		Concurrency:       cfg.Scheduler.Concurrency,
		ReconcileLookback: cfg.Scheduler.ReconcileLookback,
	}, scheduler.WithLocker(locker), scheduler.WithReconciler(a.Reconciler))
	a.Subscriptions = subscription.NewService(a.Store, a.Notifier, portsLogger, window)
	a.Orders = orders.NewService(a.Store, a.Notifier, portsLogger)

	logger.Info("Dependencies initialized",
		zap.String("store", cfg.Database.Driver),
		zap.String("notifier", cfg.Notifications.Transport),
		zap.Bool("distributed_lock", cfg.Redis.URL != ""),
	)
	return a, nil
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases everything New opened, most recent first
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Error("Failed to close dependency", zap.String("dependency", c.name), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

func (a *App) initStore(ctx context.Context) error {
	db := a.Config.Database
	switch db.Driver {
	case "postgres":
		poolCfg := postgres.DefaultPoolConfig(db.URL)
		poolCfg.MaxConns = db.MaxConns
		poolCfg.MinConns = db.MinConns
		poolCfg.QueryTimeout = db.QueryTimeout
		pool, err := postgres.NewPool(ctx, poolCfg, a.Logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		monitorCtx, stopMonitor := context.WithCancel(context.Background())
		postgres.StartPoolMonitoring(monitorCtx, pool, time.Minute, a.Logger)
		a.onClose("postgres-monitor", func(context.Context) error {
			stopMonitor()
			return nil
		})
		a.Store = postgres.NewStore(postgres.NewPoolDB(pool), db.QueryTimeout)

	case "sqlite":
		sqlDB, err := sqlite.Open(ctx, db.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.onClose("sqlite", func(context.Context) error { return sqlDB.Close() })
		// single-node deployments migrate on start
		if err := sqlite.Migrate(ctx, sqlDB); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		a.Store = sqlite.NewStore(sqlDB)

	case "memory":
		a.Logger.Warn("Using in-memory store - data is lost on restart")
		a.Store = memory.NewStore()

	default:
		return fmt.Errorf("unknown database driver %q", db.Driver)
	}
	return nil
}

func (a *App) initLocker(ctx context.Context, logger ports.Logger) (ports.Locker, error) {
	if a.Config.Redis.URL == "" {
		return lock.NewMemoryLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, a.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.onClose("redis", func(context.Context) error { return client.Close() })
	a.Health.Register("redis", observability.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	return lock.NewRedisLocker(redis.UniversalClient(client), a.Config.Redis.KeyPrefix, logger), nil
}

func (a *App) initBackend(logger ports.Logger) ports.OrderBackend {
	sc := a.Config.Shopify
	cfg := shopify.DefaultConfig(sc.Store, sc.APIKey, sc.APISecret)
	cfg.AccessToken = sc.AccessToken
	if sc.APIVersion != "" {
		cfg.APIVersion = sc.APIVersion
	}
	if sc.Country != "" {
		cfg.Country = sc.Country
	}
	cfg.RequestsPerSecond = sc.RequestsPerSecond
	cfg.Timeouts = a.Timeouts

	httpClient := pkghttp.NewClient("shopify", pkghttp.OrderBackendConfig(), a.Timeouts.SingleRetry)
	return shopify.NewClient(cfg, httpClient, logger)
}

func (a *App) initNotifier(logger ports.Logger) error {
	nc := a.Config.Notifications

	var next ports.Notifier
	switch nc.Transport {
	case "smtp":
		renderer, err := notify.NewRenderer()
		if err != nil {
			return fmt.Errorf("load email templates: %w", err)
		}
		next = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     nc.SMTPHost,
			Port:     nc.SMTPPort,
			Username: nc.SMTPUsername,
			Password: nc.SMTPPassword,
			Sender:   nc.SMTPSender,
		}, renderer, logger)

	case "amqp":
		n, err := notify.NewAMQPNotifier(nc.AMQPURL, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.onClose("rabbitmq", func(context.Context) error { return n.Close() })
		next = n

	default:
		next = notify.NewLogNotifier(logger)
	}

	dcfg := notification.DefaultConfig()
	dcfg.QueueSize = nc.QueueSize
	dcfg.Workers = nc.Workers
	dcfg.SendTimeout = a.Timeouts.Notification
	dispatcher := notification.NewDispatcher(next, logger, dcfg)
	// registered after the transport so queued mail drains before it closes
	a.onClose("notifications", dispatcher.Close)
	a.Notifier = dispatcher
	return nil
}

func awsConfig(sc config.SecretsConfig) *secrets.AWSConfig {
	if sc.Provider != "aws" {
		return nil
	}
	cfg := secrets.DefaultAWSConfig(sc.AWSRegion)
	cfg.Profile = sc.AWSProfile
	cfg.Endpoint = sc.AWSEndpoint
	if sc.CacheTTL > 0 {
		cfg.CacheTTL = sc.CacheTTL
	}
	return cfg
}

func vaultConfig(sc config.SecretsConfig) *secrets.VaultConfig {
	if sc.Provider != "vault" {
		return nil
	}
	cfg := secrets.DefaultVaultConfig(sc.VaultAddress)
	if sc.VaultAuthMethod != "" {
		cfg.AuthMethod = sc.VaultAuthMethod
	}
	cfg.Token = sc.VaultToken
	cfg.RoleID = sc.VaultRoleID
	cfg.SecretID = sc.VaultSecretID
	cfg.K8sRole = sc.VaultK8sRole
	if sc.VaultMountPath != "" {
		cfg.MountPath = sc.VaultMountPath
	}
	if sc.CacheTTL > 0 {
		cfg.CacheTTL = sc.CacheTTL
	}
	return cfg
}
