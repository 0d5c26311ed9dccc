// Package config loads and validates the broker's YAML configuration
// and the resource definition catalogs it seeds from.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/butterflysys/butterfly/internal/secrets"
	"github.com/butterflysys/butterfly/internal/storage"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Secrets providers.
const (
	SecretsNone  = ""
	SecretsLocal = "local"
	SecretsEnv   = "env"
	SecretsVault = "vault"
)

// BrokerConfig is the top-level broker configuration.
type BrokerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Store selects and configures the definition store.
	Store StoreConfig `yaml:"store"`

	// Cache configures the definition cache.
	Cache CacheConfig `yaml:"cache"`

	// Token configures capability token issuance.
	Token TokenConfig `yaml:"token"`

	// Auth configures bearer-token verification on the HTTP front
	// end.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit bounds the resolve endpoint.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// Secrets configures the credential provider.
	Secrets SecretsConfig `yaml:"secrets"`

	// DefinitionsFile seeds resource definitions at startup and is
	// watched for changes.
	DefinitionsFile string `yaml:"definitionsFile"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// StoreConfig selects the definition store backend.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	// Redis configures the redis backend.
	Redis RedisStoreConfig `yaml:"redis"`

	// Breaker wraps the store in a circuit breaker.
	Breaker bool `yaml:"breaker"`
}

// RedisStoreConfig configures the redis store backend.
type RedisStoreConfig struct {
	Addr        string   `yaml:"addr"`
	Password    string   `yaml:"password"`
	DB          int      `yaml:"db"`
	KeyPrefix   string   `yaml:"keyPrefix"`
	MaxEventLog int64    `yaml:"maxEventLog"`
	DialTimeout Duration `yaml:"dialTimeout"`
}

// ToStorage converts to the storage package's config.
func (c RedisStoreConfig) ToStorage() storage.RedisConfig {
	return storage.RedisConfig{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		KeyPrefix:   c.KeyPrefix,
		MaxEventLog: c.MaxEventLog,
		DialTimeout: c.DialTimeout.D(),
	}
}

// CacheConfig configures the definition cache.
type CacheConfig struct {
	// TTL is the definition lifetime. Defaults to 5m.
	TTL Duration `yaml:"ttl"`
}

// TokenConfig configures capability token issuance.
type TokenConfig struct {
	// Lifetime is the default token lifetime. Defaults to 60s.
	Lifetime Duration `yaml:"lifetime"`

	// SigningKeyHex is the hex-encoded HMAC key. Empty generates a
	// random per-process key.
	SigningKeyHex string `yaml:"signingKeyHex"`
}

// SigningKey decodes the configured signing key, or nil when unset.
func (c TokenConfig) SigningKey() ([]byte, error) {
	if c.SigningKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SigningKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode token signing key: %w", err)
	}
	return key, nil
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	// Enabled turns JWT verification on.
	Enabled bool `yaml:"enabled"`

	// JWTSecret is the HS256 secret.
	JWTSecret string `yaml:"jwtSecret"`
}

// RateLimitConfig bounds the resolve endpoint.
type RateLimitConfig struct {
	// RPS is the sustained request rate. Zero disables limiting.
	RPS float64 `yaml:"rps"`

	// Burst is the bucket size. Defaults to RPS rounded up.
	Burst int `yaml:"burst"`
}

// SecretsConfig configures the credential provider.
type SecretsConfig struct {
	// Provider is "local", "env", "vault", or empty for none.
	Provider string `yaml:"provider"`

	// LocalKeyHex is the hex-encoded 32-byte key for the local
	// provider.
	LocalKeyHex string `yaml:"localKeyHex"`

	// EnvPrefix is the env provider's variable prefix.
	EnvPrefix string `yaml:"envPrefix"`

	// Vault configures the vault provider.
	Vault secrets.VaultConfig `yaml:"vault"`
}

// LocalKey decodes the local provider key.
func (c SecretsConfig) LocalKey() ([]byte, error) {
	key, err := hex.DecodeString(c.LocalKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode local secrets key: %w", err)
	}
	return key, nil
}

// Default returns the broker defaults.
func Default() *BrokerConfig {
	return &BrokerConfig{
		Listen: ":8080",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Store: StoreConfig{
			Backend: StoreMemory,
		},
		Cache: CacheConfig{
			TTL: Duration(5 * time.Minute),
		},
		Token: TokenConfig{
			Lifetime: Duration(60 * time.Second),
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *BrokerConfig) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Token.Lifetime < 0 {
		return fmt.Errorf("token.lifetime must not be negative")
	}
	if _, err := c.Token.SigningKey(); err != nil {
		return err
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required when auth is enabled")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rateLimit.rps must not be negative")
	}

	switch c.Secrets.Provider {
	case SecretsNone, SecretsEnv, SecretsVault:
	case SecretsLocal:
		key, err := c.Secrets.LocalKey()
		if err != nil {
			return err
		}
		if len(key) != 32 {
			return fmt.Errorf("secrets.localKeyHex must decode to 32 bytes")
		}
	default:
		return fmt.Errorf("unknown secrets provider %q", c.Secrets.Provider)
	}

	return nil
}
