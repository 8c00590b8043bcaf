// Package config loads process settings from DAPPKIT_* environment
// variables and the optional YAML catalog of networks and wallets.
package config

import (
	"fmt"
	"time"

	"github.com/gabapcia/dappkit/internal/pkg/validator"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "DAPPKIT"

// Store backends. Every CLI command runs in its own process, so only redis
// keeps the session between commands; memory lasts for one command, which
// suits a long-running watch.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Redis holds the connection settings used when StoreBackend is "redis".
type Redis struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379" validate:"required,hostname_port"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"gte=0"`
	Profile  string `envconfig:"PROFILE" default:"default" validate:"required"`
}

// Config is the full process configuration.
type Config struct {
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	ServiceName         string        `envconfig:"SERVICE_NAME" default:"dappkit" validate:"required"`
	TelemetryEnabled    bool          `envconfig:"TELEMETRY_ENABLED" default:"false"`
	StoreBackend        string        `envconfig:"STORE_BACKEND" default:"redis" validate:"oneof=memory redis"`
	Redis               Redis         `envconfig:"REDIS"`
	CatalogFile         string        `envconfig:"CATALOG_FILE"`
	VerifyRetries       int           `envconfig:"VERIFY_RETRIES" default:"2" validate:"gte=0"`
	VerifyRetryDelay    time.Duration `envconfig:"VERIFY_RETRY_DELAY" default:"500ms" validate:"gte=0"`
	NameResolutionOrder string        `envconfig:"NAME_RESOLUTION_ORDER" default:"wns-first" validate:"oneof=wns-first ens-first"`
	NameCacheTTL        time.Duration `envconfig:"NAME_CACHE_TTL" default:"10m" validate:"gt=0"`
	ReconcileInterval   time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s" validate:"gt=0"`
	ReceiptPollInterval time.Duration `envconfig:"RECEIPT_POLL_INTERVAL" default:"4s" validate:"gt=0"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
