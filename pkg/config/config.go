package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "OFFMARKET_DB_DSN"
	EnvDBHost = "OFFMARKET_DB_HOST"
	EnvDBUser = "OFFMARKET_DB_USER"
	EnvDBName = "OFFMARKET_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	Webhook      WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OFFMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"OFFMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OFFMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OFFMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"OFFMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"OFFMARKET_DB_DSN"`
	Driver string `envconfig:"OFFMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OFFMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"OFFMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OFFMARKET_DB_USER"`
	LegacyPassword string `envconfig:"OFFMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"OFFMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"OFFMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OFFMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OFFMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OFFMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OFFMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OFFMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OFFMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"OFFMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"OFFMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OFFMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OFFMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OFFMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OFFMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OFFMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"OFFMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"OFFMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"OFFMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"OFFMARKET_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey          string `envconfig:"OFFMARKET_STRIPE_API_KEY"`
	Secret          string `envconfig:"OFFMARKET_STRIPE_SECRET"`
	Env             string `envconfig:"OFFMARKET_STRIPE_ENV" default:"test"`
	ProPriceID      string `envconfig:"OFFMARKET_STRIPE_PRO_PRICE_ID"`
	CheckoutSuccess string `envconfig:"OFFMARKET_STRIPE_CHECKOUT_SUCCESS_URL"`
	CheckoutCancel  string `envconfig:"OFFMARKET_STRIPE_CHECKOUT_CANCEL_URL"`
	PortalReturnURL string `envconfig:"OFFMARKET_STRIPE_PORTAL_RETURN_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Configured reports whether the payment integration is usable in this
// environment. When false the escrow and subscription flows decline gracefully.
func (s StripeConfig) Configured() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type CronConfig struct {
	Interval time.Duration `envconfig:"OFFMARKET_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"OFFMARKET_CRON_LOCK_TTL" default:"25h"`
	Port     string        `envconfig:"OFFMARKET_CRON_METRICS_PORT" default:"9090"`
}

type OutboxConfig struct {
	DispatchBatchSize int           `envconfig:"OFFMARKET_OUTBOX_DISPATCH_BATCH_SIZE" default:"50"`
	MaxAttempts       int           `envconfig:"OFFMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays     int           `envconfig:"OFFMARKET_OUTBOX_RETENTION_DAYS" default:"30"`
	IdempotencyTTL    time.Duration `envconfig:"OFFMARKET_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type WebhookConfig struct {
	DLQListLimit int `envconfig:"OFFMARKET_WEBHOOK_DLQ_LIST_LIMIT" default:"50"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
