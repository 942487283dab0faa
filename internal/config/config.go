package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment   string `validate:"oneof=development staging production test"`
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cron          CronConfig
	Scheduler     SchedulerConfig
	Shopify       ShopifyConfig
	Notifications NotificationConfig
	Secrets       SecretsConfig
	Logger        LoggerConfig
}

// ServerConfig holds HTTP, gRPC and metrics listener configuration
type ServerConfig struct {
	Host            string
	HTTPPort        int           `validate:"min=1,max=65535"`
	GRPCPort        int           `validate:"min=1,max=65535"`
	MetricsPort     int           `validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DatabaseConfig selects the persistence backend
type DatabaseConfig struct {
	// Driver is "postgres", "sqlite" or "memory"
	Driver       string `validate:"oneof=postgres sqlite memory"`
	URL          string `validate:"required_if=Driver postgres"`
	SQLitePath   string `validate:"required_if=Driver sqlite"`
	MaxConns     int32  `validate:"min=1"`
	MinConns     int32  `validate:"min=0,ltefield=MaxConns"`
	QueryTimeout time.Duration
}

// RedisConfig enables the distributed subscription lock when URL is set
type RedisConfig struct {
	URL       string `validate:"omitempty,url"`
	KeyPrefix string
}

// CronConfig guards the trigger endpoints
type CronConfig struct {
	Secret    string  `validate:"required,min=16"`
	RateLimit float64 `validate:"gt=0"` // requests per second
	Burst     int     `validate:"min=1"`
}

// SchedulerConfig tunes the order window and scheduler passes
type SchedulerConfig struct {
	LeadTime          time.Duration `validate:"gt=0"`
	MondayLeadTime    time.Duration `validate:"gt=0"`
	Tolerance         time.Duration `validate:"gte=0"`
	Horizon           time.Duration `validate:"gtefield=MondayLeadTime"`
	LockTTL           time.Duration `validate:"gt=0"`
	Concurrency       int           `validate:"min=1,max=64"`
	ReconcileLookback time.Duration `validate:"gte=0"`
	// RunInterval makes cmd/server poll on its own; 0 leaves triggering to cron
	RunInterval time.Duration `validate:"gte=0"`
}

// ShopifyConfig holds order backend credentials
type ShopifyConfig struct {
	Store             string `validate:"required"`
	APIKey            string `validate:"required_without=AccessToken"`
	APISecret         string `validate:"required_without=AccessToken"`
	AccessToken       string
	APIVersion        string
	Country           string
	RequestsPerSecond float64 `validate:"gt=0"`
}

// NotificationConfig selects how customer emails leave the service
type NotificationConfig struct {
	// Transport is "smtp", "amqp" or "log"
	Transport    string `validate:"oneof=smtp amqp log"`
	SMTPHost     string `validate:"required_if=Transport smtp"`
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string `validate:"omitempty,email"`
	AMQPURL      string `validate:"required_if=Transport amqp"`
	QueueSize    int    `validate:"min=1"`
	Workers      int    `validate:"min=1"`
}

// SecretsConfig selects where secret:// references are resolved
type SecretsConfig struct {
	Provider        string `validate:"oneof=local aws vault"`
	LocalPath       string
	AWSRegion       string `validate:"required_if=Provider aws"`
	AWSProfile      string
	AWSEndpoint     string
	VaultAddress    string `validate:"required_if=Provider vault"`
	VaultAuthMethod string `validate:"omitempty,oneof=token approle kubernetes"`
	VaultToken      string
	VaultRoleID     string
	VaultSecretID   string
	VaultK8sRole    string
	VaultMountPath  string
	CacheTTL        time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `validate:"oneof=debug info warn error"`
	Development bool
}

// LoadFromEnv loads configuration from environment variables, after loading
// .env (or ENV_FILE) when present
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	env := getEnv("ENVIRONMENT", "development")
	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			HTTPPort:        getEnvAsInt("HTTP_PORT", 8080),
			GRPCPort:        getEnvAsInt("GRPC_PORT", 50051),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			URL:          getEnv("DATABASE_URL", ""),
			SQLitePath:   getEnv("SQLITE_PATH", "scheduler.db"),
			MaxConns:     int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:     int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			QueryTimeout: getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "scheduler:lock:"),
		},
		Cron: CronConfig{
			Secret:    getEnv("CRON_SECRET", ""),
			RateLimit: getEnvAsFloat("CRON_RATE_LIMIT", 1),
			Burst:     getEnvAsInt("CRON_BURST", 5),
		},
		Scheduler: SchedulerConfig{
			LeadTime:          getEnvAsDuration("ORDER_LEAD_TIME", 24*time.Hour),
			MondayLeadTime:    getEnvAsDuration("ORDER_MONDAY_LEAD_TIME", 48*time.Hour),
			Tolerance:         getEnvAsDuration("ORDER_WINDOW_TOLERANCE", 30*time.Second),
			Horizon:           getEnvAsDuration("SCHEDULER_HORIZON", 72*time.Hour),
			LockTTL:           getEnvAsDuration("SCHEDULER_LOCK_TTL", 2*time.Minute),
			Concurrency:       getEnvAsInt("SCHEDULER_CONCURRENCY", 1),
			ReconcileLookback: getEnvAsDuration("RECONCILE_LOOKBACK", 0),
			RunInterval:       getEnvAsDuration("SCHEDULER_RUN_INTERVAL", 0),
		},
		Shopify: ShopifyConfig{
			Store:             getEnv("SHOPIFY_STORE", ""),
			APIKey:            getEnv("SHOPIFY_API_KEY", ""),
			APISecret:         getEnv("SHOPIFY_API_SECRET", ""),
			AccessToken:       getEnv("SHOPIFY_ACCESS_TOKEN", ""),
			APIVersion:        getEnv("SHOPIFY_API_VERSION", "2026-01"),
			Country:           getEnv("SHOPIFY_COUNTRY", "India"),
			RequestsPerSecond: getEnvAsFloat("SHOPIFY_RPS", 2),
		},
		Notifications: NotificationConfig{
			Transport:    getEnv("NOTIFY_TRANSPORT", "log"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPSender:   getEnv("SMTP_SENDER", ""),
			AMQPURL:      getEnv("RABBITMQ_URL", ""),
			QueueSize:    getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:      getEnvAsInt("NOTIFY_WORKERS", 2),
		},
		Secrets: SecretsConfig{
			Provider:        getEnv("SECRET_MANAGER", "local"),
			LocalPath:       getEnv("SECRETS_PATH", ""),
			AWSRegion:       getEnv("AWS_REGION", ""),
			AWSProfile:      getEnv("AWS_PROFILE", ""),
			AWSEndpoint:     getEnv("AWS_ENDPOINT", ""),
			VaultAddress:    getEnv("VAULT_ADDR", ""),
			VaultAuthMethod: getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:      getEnv("VAULT_TOKEN", ""),
			VaultRoleID:     getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:   getEnv("VAULT_SECRET_ID", ""),
			VaultK8sRole:    getEnv("VAULT_K8S_ROLE", ""),
			VaultMountPath:  getEnv("VAULT_MOUNT_PATH", "secret"),
			CacheTTL:        getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", env == "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and reports every failing field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SecretFields returns the values that may hold secret:// references
func (c *Config) SecretFields() []*string {
	return []*string{
		&c.Database.URL,
		&c.Cron.Secret,
		&c.Shopify.APISecret,
		&c.Shopify.AccessToken,
		&c.Notifications.SMTPPassword,
		&c.Notifications.AMQPURL,
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
