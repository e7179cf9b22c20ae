package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Stripe        StripeConfig
	Outbox        OutboxConfig
	Kafka         KafkaConfig
	GCP           GCPConfig
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
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POKECARD_APP_ENV" required:"true"`
	Port         string `envconfig:"POKECARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POKECARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POKECARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"POKECARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"POKECARD_DB_DSN"`
	Driver string `envconfig:"POKECARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POKECARD_DB_HOST"`
	LegacyPort     int    `envconfig:"POKECARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POKECARD_DB_USER"`
	LegacyPassword string `envconfig:"POKECARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"POKECARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"POKECARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POKECARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POKECARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POKECARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POKECARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POKECARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POKECARD_REDIS_ADDR"`
	Password     string        `envconfig:"POKECARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"POKECARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POKECARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POKECARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POKECARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POKECARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POKECARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"POKECARD_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"POKECARD_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"POKECARD_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"POKECARD_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"POKECARD_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"POKECARD_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"POKECARD_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"POKECARD_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"POKECARD_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"POKECARD_PASSWORD_MIN_LENGTH" default:"8"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"POKECARD_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"POKECARD_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"POKECARD_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"POKECARD_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"POKECARD_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"POKECARD_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"POKECARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"POKECARD_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig bounds checkout-session creation and provider redirects.
type CheckoutConfig struct {
	Currency              string        `envconfig:"POKECARD_CHECKOUT_CURRENCY" default:"eur"`
	SuccessURL            string        `envconfig:"POKECARD_CHECKOUT_SUCCESS_URL" default:"http://localhost:5173/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL             string        `envconfig:"POKECARD_CHECKOUT_CANCEL_URL" default:"http://localhost:5173/cart"`
	AllowedOrigins        []string      `envconfig:"POKECARD_CHECKOUT_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	SessionTTL            time.Duration `envconfig:"POKECARD_CHECKOUT_SESSION_TTL" default:"30m"`
	MaxItems              int           `envconfig:"POKECARD_CHECKOUT_MAX_ITEMS" default:"50"`
	MaxQuantityPerItem    int           `envconfig:"POKECARD_CHECKOUT_MAX_QTY_PER_ITEM" default:"100"`
	MaxTotalQuantity      int           `envconfig:"POKECARD_CHECKOUT_MAX_TOTAL_QTY" default:"500"`
	WebhookIdempotencyTTL time.Duration `envconfig:"POKECARD_CHECKOUT_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"POKECARD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"POKECARD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"POKECARD_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Transport      string `envconfig:"POKECARD_OUTBOX_TRANSPORT" default:"kafka"`
}

// Outbox transports the publisher can relay to.
const (
	TransportKafka  = "kafka"
	TransportPubSub = "pubsub"
)

func (c *OutboxConfig) validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	switch c.Transport {
	case "":
		c.Transport = TransportKafka
	case TransportKafka, TransportPubSub:
	default:
		return fmt.Errorf("unknown outbox transport %q", c.Transport)
	}
	return nil
}

// KafkaConfig points the outbox publisher at the event brokers.
type KafkaConfig struct {
	Brokers     []string `envconfig:"POKECARD_KAFKA_BROKERS"`
	TopicPrefix string   `envconfig:"POKECARD_KAFKA_TOPIC_PREFIX" default:"pokecard"`
}

// GCPConfig is only read when the outbox relays to Pub/Sub.
type GCPConfig struct {
	ProjectID string `envconfig:"POKECARD_GCP_PROJECT_ID"`
}

// CronConfig tunes the background sweeps run by cmd/cron-worker.
type CronConfig struct {
	Interval        time.Duration `envconfig:"POKECARD_CRON_INTERVAL" default:"1m"`
	ExpiryBatchSize int           `envconfig:"POKECARD_CRON_EXPIRY_BATCH_SIZE" default:"200"`
	OutboxRetention time.Duration `envconfig:"POKECARD_CRON_OUTBOX_RETENTION" default:"336h"`
	LockTTL         time.Duration `envconfig:"POKECARD_CRON_LOCK_TTL" default:"10m"`
}

type StripeConfig struct {
	APIKey string `envconfig:"POKECARD_STRIPE_API_KEY"`
	Secret string `envconfig:"POKECARD_STRIPE_SECRET"`
	Env    string `envconfig:"POKECARD_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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
