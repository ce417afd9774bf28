package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Square       SquareConfig
	Sweep        SweepConfig
	Outbox       OutboxConfig
	Audit        AuditConfig
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
	Env          string `envconfig:"PAYLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAYLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PAYLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAYLINK_DB_DSN"`
	Driver string `envconfig:"PAYLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYLINK_DB_USER"`
	LegacyPassword string `envconfig:"PAYLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAYLINK_REDIS_ADDR"`
	Password     string        `envconfig:"PAYLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PAYLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PAYLINK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"PAYLINK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAYLINK_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PAYLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAYLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic        string `envconfig:"PAYLINK_PUBSUB_PAYMENTS_TOPIC" required:"true"`
	PaymentsSubscription string `envconfig:"PAYLINK_PUBSUB_PAYMENTS_SUBSCRIPTION" required:"true"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"PAYLINK_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"PAYLINK_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"PAYLINK_SQUARE_WEBHOOK_URL"`
	Env           string `envconfig:"PAYLINK_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"PAYLINK_SQUARE_LOCATION_ID"`
}

// WebhookSigningSecret returns the shared secret Square signs callbacks with.
func (s SquareConfig) WebhookSigningSecret() string { return s.WebhookSecret }

// WebhookNotificationURL returns the registered callback URL, part of the
// signed payload in Square's webhook signature scheme.
func (s SquareConfig) WebhookNotificationURL() string { return s.WebhookURL }

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SweepConfig struct {
	Interval    time.Duration `envconfig:"PAYLINK_SWEEP_INTERVAL" default:"5m"`
	StaleAfter  time.Duration `envconfig:"PAYLINK_SWEEP_STALE_AFTER" default:"24h"`
	BatchSize   int           `envconfig:"PAYLINK_SWEEP_BATCH_SIZE" default:"250"`
	GatewayWait time.Duration `envconfig:"PAYLINK_GATEWAY_TIMEOUT" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAYLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAYLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAYLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type AuditConfig struct {
	RetentionDays int `envconfig:"PAYLINK_AUDIT_RETENTION_DAYS" default:"365"`
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
