package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	API           APIConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	IdentityToken IdentityTokenConfig
	OTP           OTPConfig
	Password      PasswordConfig
	Settlement    SettlementConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Sendgrid      SendgridConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGASEKE_APP_ENV" required:"true"`
	Port         string `envconfig:"AGASEKE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGASEKE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGASEKE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AGASEKE_SERVICE_KIND" default:"api"`
}

// APIConfig tunes the HTTP surface: allowed browser origins and the
// per-IP/per-email throttle on the unauthenticated login OTP routes.
type APIConfig struct {
	CORSOrigins        []string      `envconfig:"AGASEKE_CORS_ORIGINS" default:"http://localhost:3000"`
	LoginOTPWindow     time.Duration `envconfig:"AGASEKE_LOGIN_OTP_WINDOW" default:"15m"`
	LoginOTPIPLimit    int           `envconfig:"AGASEKE_LOGIN_OTP_IP_LIMIT" default:"20"`
	LoginOTPEmailLimit int           `envconfig:"AGASEKE_LOGIN_OTP_EMAIL_LIMIT" default:"5"`
}

type DBConfig struct {
	DSN    string `envconfig:"AGASEKE_DB_DSN"`
	Driver string `envconfig:"AGASEKE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AGASEKE_DB_HOST"`
	LegacyPort     int    `envconfig:"AGASEKE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AGASEKE_DB_USER"`
	LegacyPassword string `envconfig:"AGASEKE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AGASEKE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AGASEKE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AGASEKE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGASEKE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGASEKE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGASEKE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"AGASEKE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGASEKE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AGASEKE_REDIS_ADDR"`
	Password     string        `envconfig:"AGASEKE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGASEKE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGASEKE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGASEKE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGASEKE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGASEKE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGASEKE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers the API access tokens issued by the account service.
type JWTConfig struct {
	Secret            string `envconfig:"AGASEKE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGASEKE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGASEKE_JWT_EXPIRATION_MINUTES" required:"true"`
}

// IdentityTokenConfig signs the QR payload that identifies a buyer to an agent.
type IdentityTokenConfig struct {
	Secret string        `envconfig:"AGASEKE_IDENTITY_TOKEN_SECRET" required:"true"`
	Issuer string        `envconfig:"AGASEKE_IDENTITY_TOKEN_ISSUER" default:"agaseke-identity"`
	TTL    time.Duration `envconfig:"AGASEKE_IDENTITY_TOKEN_TTL" default:"24h"`
	QRSize int           `envconfig:"AGASEKE_IDENTITY_QR_SIZE" default:"256"`
}

type OTPConfig struct {
	TTL              time.Duration `envconfig:"AGASEKE_OTP_TTL" default:"5m"`
	CodeLength       int           `envconfig:"AGASEKE_OTP_CODE_LENGTH" default:"6"`
	GrantTTL         time.Duration `envconfig:"AGASEKE_OTP_GRANT_TTL" default:"10m"`
	IssueWindow      time.Duration `envconfig:"AGASEKE_OTP_ISSUE_WINDOW" default:"1m"`
	IssueLimit       int           `envconfig:"AGASEKE_OTP_ISSUE_LIMIT" default:"3"`
	CleanupRetention time.Duration `envconfig:"AGASEKE_OTP_CLEANUP_RETENTION" default:"24h"`
}

// PasswordConfig holds argon2id parameters used when hashing OTP codes at rest.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"AGASEKE_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int `envconfig:"AGASEKE_ARGON_TIME" default:"2"`
	ArgonParallelism int `envconfig:"AGASEKE_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int `envconfig:"AGASEKE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"AGASEKE_ARGON_KEY_LEN" default:"32"`
}

type SettlementConfig struct {
	VendorShare string `envconfig:"AGASEKE_SETTLEMENT_VENDOR_SHARE" default:"0.8"`
	DeliveryFee string `envconfig:"AGASEKE_SETTLEMENT_DELIVERY_FEE" default:"5.00"`
}

// VendorShareDecimal returns the parsed vendor share; call after Load validated it.
func (s SettlementConfig) VendorShareDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.VendorShare)
}

// DeliveryFeeDecimal returns the parsed flat delivery fee; call after Load validated it.
func (s SettlementConfig) DeliveryFeeDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.DeliveryFee)
}

func (s SettlementConfig) validate() error {
	share, err := decimal.NewFromString(s.VendorShare)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvSettlementVendorPc, err)
	}
	if share.LessThan(decimal.Zero) || share.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvSettlementVendorPc)
	}
	fee, err := decimal.NewFromString(s.DeliveryFee)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvSettlementFee, err)
	}
	if fee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvSettlementFee)
	}
	return nil
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"AGASEKE_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"AGASEKE_AUTO_MIGRATE" default:"false"`
	RequireOTPGrant bool `envconfig:"AGASEKE_FEATURE_REQUIRE_OTP_GRANT" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"AGASEKE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AGASEKE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"AGASEKE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AGASEKE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PurchaseTopic         string `envconfig:"AGASEKE_PUBSUB_PURCHASE_TOPIC" default:"agaseke-purchase-events"`
	PurchaseDLQTopic      string `envconfig:"AGASEKE_PUBSUB_PURCHASE_DLQ_TOPIC"`
	AnalyticsSubscription string `envconfig:"AGASEKE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"agaseke-analytics"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"AGASEKE_BIGQUERY_DATASET" default:"agaseke"`
	SettlementTable string `envconfig:"AGASEKE_BIGQUERY_SETTLEMENT_TABLE" default:"purchase_settlements"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AGASEKE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AGASEKE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AGASEKE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"AGASEKE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"AGASEKE_SENDGRID_FROM_EMAIL" default:"no-reply@agaseke.rw"`
	FromName    string `envconfig:"AGASEKE_SENDGRID_FROM_NAME" default:"Agaseke"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"AGASEKE_CRON_INTERVAL" default:"5m"`
	IdentityTokenRetention time.Duration `envconfig:"AGASEKE_CRON_IDENTITY_TOKEN_RETENTION" default:"168h"`
	OutboxRetention        time.Duration `envconfig:"AGASEKE_CRON_OUTBOX_RETENTION" default:"720h"`
	LockTTL                time.Duration `envconfig:"AGASEKE_CRON_LOCK_TTL" default:"10m"`
	MetricsAddr            string        `envconfig:"AGASEKE_CRON_METRICS_ADDR"`
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
