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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Carrier      CarrierConfig
	Hazmat       HazmatConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	SendGrid     SendGridConfig
	Outbox       OutboxConfig
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
	Env            string   `envconfig:"TLINK_APP_ENV" required:"true"`
	Port           string   `envconfig:"TLINK_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"TLINK_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"TLINK_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"TLINK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TLINK_DB_DSN"`
	Driver string `envconfig:"TLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"TLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TLINK_DB_USER"`
	LegacyPassword string `envconfig:"TLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"TLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"TLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TLINK_REDIS_ADDR"`
	Password     string        `envconfig:"TLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"TLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TLINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TLINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TLINK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AccessTokenTTL returns the access token lifetime configured in minutes.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TLINK_AUTO_MIGRATE" default:"false"`
}

// CarrierConfig holds the carrier API credentials and request tuning.
type CarrierConfig struct {
	BaseURL        string        `envconfig:"TLINK_CARRIER_BASE_URL" required:"true"`
	ClientID       string        `envconfig:"TLINK_CARRIER_CLIENT_ID" required:"true"`
	ClientSecret   string        `envconfig:"TLINK_CARRIER_CLIENT_SECRET" required:"true"`
	AccountNumber  string        `envconfig:"TLINK_CARRIER_ACCOUNT_NUMBER" required:"true"`
	RequestTimeout time.Duration `envconfig:"TLINK_CARRIER_TIMEOUT" default:"15s"`
	TokenSkew      time.Duration `envconfig:"TLINK_CARRIER_TOKEN_SKEW" default:"60s"`
	WebhookSecret  string        `envconfig:"TLINK_CARRIER_WEBHOOK_SECRET"`
}

// HazmatConfig controls the dangerous-goods threshold check. The threshold is
// compared against the summed requested quantity in the declared unit; the
// comparison is unit-naive on purpose (see DESIGN.md).
type HazmatConfig struct {
	Threshold string `envconfig:"TLINK_HAZMAT_THRESHOLD" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TLINK_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ShipmentsTopic           string `envconfig:"TLINK_PUBSUB_SHIPMENTS_TOPIC" default:"tlink-shipment-events"`
	ShipmentsSubscription    string `envconfig:"TLINK_PUBSUB_SHIPMENTS_SUBSCRIPTION"`
	NotificationTopic        string `envconfig:"TLINK_PUBSUB_NOTIFICATION_TOPIC" default:"tlink-notification-events"`
	NotificationSubscription string `envconfig:"TLINK_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type SendGridConfig struct {
	APIKey      string `envconfig:"TLINK_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"TLINK_SENDGRID_FROM_EMAIL"`
	BaseURL     string `envconfig:"TLINK_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
