package config

// EnvPrefix is empty because every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "POKECARD_APP_ENV"
	EnvPort                   = "POKECARD_APP_PORT"
	EnvLogLevel               = "POKECARD_LOG_LEVEL"
	EnvDBDSN                  = "POKECARD_DB_DSN"
	EnvDBHost                 = "POKECARD_DB_HOST"
	EnvDBUser                 = "POKECARD_DB_USER"
	EnvDBName                 = "POKECARD_DB_NAME"
	EnvRedisURL               = "POKECARD_REDIS_URL"
	EnvJWTSecret              = "POKECARD_JWT_SECRET"
	EnvJWTIssuer              = "POKECARD_JWT_ISSUER"
	EnvJWTExpMins             = "POKECARD_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "POKECARD_REFRESH_TOKEN_TTL_MINUTES"
	EnvCheckoutAllowedOrigins = "POKECARD_CHECKOUT_ALLOWED_ORIGINS"
	EnvKafkaBrokers           = "POKECARD_KAFKA_BROKERS"
	EnvOutboxTransport        = "POKECARD_OUTBOX_TRANSPORT"
	EnvGCPProjectID           = "POKECARD_GCP_PROJECT_ID"

	EnvShopperAPIURL     = "POKECARD_SHOPPER_API_URL"
	EnvShopperStorage    = "POKECARD_SHOPPER_STORAGE"
	EnvShopperStorageDir = "POKECARD_SHOPPER_STORAGE_DIR"
	EnvShopperDebounce   = "POKECARD_SHOPPER_RECONCILE_DEBOUNCE"
	EnvShopperDraftTTL   = "POKECARD_SHOPPER_DRAFT_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
