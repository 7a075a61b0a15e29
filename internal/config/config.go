// Package config provides configuration types for the storefront client.
//
// Configuration is file-based (storefront.yaml) with environment overrides
// under the STOREFRONT_ prefix. Every key has a default, so the client runs
// without any config file against the public backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Token store kinds accepted by token.store.
const (
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
	TokenStoreMemory = "memory"
)

// Cart ordering values accepted by cart.ordering.
const (
	OrderingSerial           = "serial"
	OrderingLastResponseWins = "last-response-wins"
)

// DefaultBaseURL is the public storefront backend.
const DefaultBaseURL = "https://ecommerce-backend-spdi.onrender.com/api"

// Config is the top-level configuration of the storefront client.
type Config struct {
	// API configures the REST backend.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Token configures where the credential token is persisted.
	Token TokenConfig `yaml:"token" mapstructure:"token"`

	// Cart configures the cart synchronizer.
	Cart CartConfig `yaml:"cart" mapstructure:"cart"`

	// Catalog configures the item listing cache.
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Telemetry configures tracing and the metrics endpoint.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode forces debug logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// APIConfig configures the REST backend client.
type APIConfig struct {
	// BaseURL is joined with every endpoint path (e.g. "/auth/login").
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// Timeout bounds one round-trip (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// TokenConfig configures credential persistence.
type TokenConfig struct {
	// Store is one of "file", "sqlite" or "memory".
	Store string `yaml:"store" mapstructure:"store" validate:"required,token_store"`

	// Path is the JSON file or sqlite database path. Ignored for memory.
	// Defaults to ~/.storefront/session.json or ~/.storefront/session.db.
	Path string `yaml:"path" mapstructure:"path"`
}

// CartConfig configures the cart synchronizer.
type CartConfig struct {
	// Ordering is "serial" or "last-response-wins".
	Ordering string `yaml:"ordering" mapstructure:"ordering" validate:"required,ordering"`
}

// CatalogConfig configures the listing cache.
type CatalogConfig struct {
	// CacheTTL is how long a listing page is reused (e.g. "30s"). "0s" disables the cache.
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty,duration"`

	// CacheMaxSize bounds the number of cached pages.
	CacheMaxSize int `yaml:"cache_max_size" mapstructure:"cache_max_size" validate:"omitempty,min=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// TelemetryConfig configures tracing and metrics exposure.
type TelemetryConfig struct {
	// Trace exports client spans to stderr.
	Trace bool `yaml:"trace" mapstructure:"trace"`

	// MetricsAddr, when set, serves /metrics during an interactive shell.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "30s"
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "storefront-cli"
	}

	if c.Token.Store == "" {
		c.Token.Store = TokenStoreFile
	}
	if c.Token.Path == "" {
		c.Token.Path = defaultTokenPath(c.Token.Store)
	}

	if c.Cart.Ordering == "" {
		c.Cart.Ordering = OrderingSerial
	}

	if c.Catalog.CacheTTL == "" {
		c.Catalog.CacheTTL = "30s"
	}
	if c.Catalog.CacheMaxSize == 0 {
		c.Catalog.CacheMaxSize = 500
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// defaultTokenPath returns the per-user token location for a store kind.
func defaultTokenPath(store string) string {
	name := "session.json"
	switch store {
	case TokenStoreMemory:
		return ""
	case TokenStoreSQLite:
		name = "session.db"
	}
	return filepath.Join(StateDir(), name)
}

// StateDir is the per-user directory holding persisted client state.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront"
	}
	return filepath.Join(home, ".storefront")
}

// APITimeout parses API.Timeout.
func (c *Config) APITimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 0, fmt.Errorf("api.timeout: %w", err)
	}
	return d, nil
}

// CatalogCacheTTL parses Catalog.CacheTTL.
func (c *Config) CatalogCacheTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Catalog.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("catalog.cache_ttl: %w", err)
	}
	return d, nil
}

// EffectiveLogLevel returns the configured level, or "debug" in dev mode.
func (c *Config) EffectiveLogLevel() string {
	if c.DevMode {
		return "debug"
	}
	return c.Log.Level
}
