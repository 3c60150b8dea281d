package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is empty because every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "MARKETPLACE_APP_ENV"
	EnvPort          = "MARKETPLACE_APP_PORT"
	EnvDBDSN         = "MARKETPLACE_DB_DSN"
	EnvDBHost        = "MARKETPLACE_DB_HOST"
	EnvDBUser        = "MARKETPLACE_DB_USER"
	EnvDBName        = "MARKETPLACE_DB_NAME"
	EnvRedisURL      = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret     = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer     = "MARKETPLACE_JWT_ISSUER"
	EnvPaymentSecret = "MARKETPLACE_PAYMENTS_WEBHOOK_SECRET"
	EnvPaymentProv   = "MARKETPLACE_PAYMENTS_PROVIDER"
	EnvGCPProjectID  = "MARKETPLACE_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Payments  PaymentsConfig
	Square    SquareConfig
	HostedPay HostedPayConfig
	Outbox    OutboxConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Metrics   MetricsConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(cfg.Square, cfg.HostedPay); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool     `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
	CORSOrigins  []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"MARKETPLACE_REDIS_KEY_PREFIX" default:"mkt"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

const (
	PaymentProviderSquare    = "square"
	PaymentProviderHostedPay = "hostedpay"
)

type PaymentsConfig struct {
	Provider         string        `envconfig:"MARKETPLACE_PAYMENTS_PROVIDER" default:"square"`
	Currency         string        `envconfig:"MARKETPLACE_PAYMENTS_CURRENCY" default:"USD"`
	WebhookSecret    string        `envconfig:"MARKETPLACE_PAYMENTS_WEBHOOK_SECRET"`
	SuccessURL       string        `envconfig:"MARKETPLACE_PAYMENTS_SUCCESS_URL"`
	FailureURL       string        `envconfig:"MARKETPLACE_PAYMENTS_FAILURE_URL"`
	IdempotencyTTL   time.Duration `envconfig:"MARKETPLACE_PAYMENTS_IDEMPOTENCY_TTL" default:"720h"`
	OrderLockTimeout time.Duration `envconfig:"MARKETPLACE_PAYMENTS_ORDER_LOCK_TIMEOUT" default:"10s"`
}

// NormalizedProvider returns the lower-cased provider name.
func (p PaymentsConfig) NormalizedProvider() string {
	provider := strings.ToLower(strings.TrimSpace(p.Provider))
	if provider == "" {
		return PaymentProviderSquare
	}
	return provider
}

func (p PaymentsConfig) validate(square SquareConfig, hosted HostedPayConfig) error {
	switch p.NormalizedProvider() {
	case PaymentProviderSquare:
		if strings.TrimSpace(square.AccessToken) == "" || strings.TrimSpace(square.LocationID) == "" {
			return fmt.Errorf("square provider requires MARKETPLACE_SQUARE_ACCESS_TOKEN and MARKETPLACE_SQUARE_LOCATION_ID")
		}
	case PaymentProviderHostedPay:
		if strings.TrimSpace(hosted.BaseURL) == "" {
			return fmt.Errorf("hostedpay provider requires MARKETPLACE_HOSTEDPAY_BASE_URL")
		}
	default:
		return fmt.Errorf("unsupported payment provider %q", p.Provider)
	}
	return nil
}

type SquareConfig struct {
	AccessToken string `envconfig:"MARKETPLACE_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"MARKETPLACE_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"MARKETPLACE_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type HostedPayConfig struct {
	BaseURL string        `envconfig:"MARKETPLACE_HOSTEDPAY_BASE_URL"`
	APIKey  string        `envconfig:"MARKETPLACE_HOSTEDPAY_API_KEY"`
	Timeout time.Duration `envconfig:"MARKETPLACE_HOSTEDPAY_TIMEOUT" default:"10s"`
	Retries int           `envconfig:"MARKETPLACE_HOSTEDPAY_RETRIES" default:"2"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance jobs. A zero TTL disables that expiry.
type CronConfig struct {
	Interval            time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"15m"`
	PendingPaymentTTL   time.Duration `envconfig:"MARKETPLACE_CRON_PENDING_PAYMENT_TTL" default:"72h"`
	AwaitingExchangeTTL time.Duration `envconfig:"MARKETPLACE_CRON_AWAITING_EXCHANGE_TTL" default:"168h"`
	OutboxRetention     time.Duration `envconfig:"MARKETPLACE_CRON_OUTBOX_RETENTION" default:"720h"`
	ExpiryBatchSize     int           `envconfig:"MARKETPLACE_CRON_EXPIRY_BATCH_SIZE" default:"100"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	PaymentsTopic string `envconfig:"MARKETPLACE_PUBSUB_PAYMENTS_TOPIC" default:"marketplace-payment-events"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"MARKETPLACE_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"MARKETPLACE_METRICS_PATH" default:"/metrics"`
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
