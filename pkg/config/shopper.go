package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage backends understood by the shopper client.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// ShopperConfig drives the client-side cart and checkout core.
type ShopperConfig struct {
	APIURL            string        `envconfig:"POKECARD_SHOPPER_API_URL" default:"http://localhost:8080"`
	LoginURL          string        `envconfig:"POKECARD_SHOPPER_LOGIN_URL" default:"/login"`
	CheckoutPath      string        `envconfig:"POKECARD_SHOPPER_CHECKOUT_PATH" default:"/checkout"`
	Storage           string        `envconfig:"POKECARD_SHOPPER_STORAGE" default:"file"`
	StorageDir        string        `envconfig:"POKECARD_SHOPPER_STORAGE_DIR" default:".pokecard"`
	RedisURL          string        `envconfig:"POKECARD_SHOPPER_REDIS_URL"`
	ReconcileDebounce time.Duration `envconfig:"POKECARD_SHOPPER_RECONCILE_DEBOUNCE" default:"300ms"`
	DraftTTL          time.Duration `envconfig:"POKECARD_SHOPPER_DRAFT_TTL" default:"30m"`
	IntentTTL         time.Duration `envconfig:"POKECARD_SHOPPER_INTENT_TTL" default:"10m"`
	RequestTimeout    time.Duration `envconfig:"POKECARD_SHOPPER_REQUEST_TIMEOUT" default:"15s"`
	LogLevel          string        `envconfig:"POKECARD_LOG_LEVEL" default:"warn"`
}

// LoadShopper reads the shopper client configuration from the environment.
func LoadShopper() (*ShopperConfig, error) {
	var cfg ShopperConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing shopper config: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	switch cfg.Storage {
	case StorageMemory, StorageFile:
	case StorageRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis storage requires POKECARD_SHOPPER_REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown shopper storage %q", cfg.Storage)
	}
	if cfg.ReconcileDebounce < 0 {
		return nil, fmt.Errorf("reconcile debounce must be non-negative")
	}
	if cfg.DraftTTL <= 0 {
		return nil, fmt.Errorf("draft ttl must be positive")
	}
	return &cfg, nil
}
