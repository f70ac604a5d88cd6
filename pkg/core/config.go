package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for the companion backend.
//
// It covers the HTTP server, the external language model, the document
// store, the optional Redis cache, and rate limiting. Cache and LLM are
// optional capabilities: the system degrades to deterministic fallbacks
// when either is absent.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `json:"server"`

	// LLM contains the external language-model provider configuration.
	LLM LLMConfig `json:"llm"`

	// Store contains document-store configuration.
	Store StoreConfig `json:"store"`

	// Cache contains optional Redis cache configuration.
	Cache CacheConfig `json:"cache"`

	// RateLimit contains IP-keyed rate limiting settings.
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `json:"addr"`

	// AllowedOrigin restricts CORS in production; "*" allows all.
	AllowedOrigin string `json:"allowed_origin,omitempty"`

	// CleanupInterval is how often the inactive-conversation sweep runs.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// CleanupMaxAge is the inactivity threshold for the sweep.
	CleanupMaxAge time.Duration `json:"cleanup_max_age"`
}

// LLMConfig contains configuration for the language-model provider.
//
// An empty APIKey disables the provider entirely; every consumer then uses
// its deterministic fallback path.
type LLMConfig struct {
	// Provider is the provider name. Only "openai" is currently supported;
	// an empty value disables the external model.
	Provider string `json:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g. "gpt-4o-mini").
	Model string `json:"model"`

	// BaseURL overrides the provider's default endpoint (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Timeout bounds each model call.
	Timeout time.Duration `json:"timeout"`
}

// Enabled reports whether an external model is configured.
func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.APIKey != ""
}

// StoreConfig contains document-store configuration.
//
// Supported providers: sqlite, postgres, mysql, memory.
type StoreConfig struct {
	// Provider selects the backend.
	Provider string `json:"provider"`

	// DSN is the driver-specific connection string. For sqlite this is the
	// database file path.
	DSN string `json:"dsn"`
}

// CacheConfig contains Redis cache configuration.
type CacheConfig struct {
	// URL is the Redis URL (e.g. "redis://localhost:6379/0").
	// Empty disables caching and rate limiting.
	URL string `json:"url"`

	// TTL is the expiry for cached profile and conversation snapshots.
	TTL time.Duration `json:"ttl"`

	// Timeout bounds each cache operation.
	Timeout time.Duration `json:"timeout"`
}

// Enabled reports whether a cache is configured.
func (c CacheConfig) Enabled() bool {
	return c.URL != ""
}

// RateLimitConfig contains IP-keyed sliding-window rate limit settings.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int `json:"max"`

	// Window is the sliding-window duration.
	Window time.Duration `json:"window"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function searches for a .env file (up to 5 directory levels up),
// loads it if found, and then reads:
//
//	PORT, ALLOWED_ORIGIN
//	LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL, LLM_TIMEOUT
//	STORE_PROVIDER (sqlite, postgres, mysql, memory), STORE_DSN
//	REDIS_URL, CACHE_TTL
//	RATE_LIMIT_MAX, RATE_LIMIT_WINDOW
//	CLEANUP_INTERVAL, CLEANUP_MAX_AGE
//
// Returns a Config instance with defaults applied for anything unset.
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":" + getEnvOrDefault("PORT", "3000"),
			AllowedOrigin:   getEnvOrDefault("ALLOWED_ORIGIN", "*"),
			CleanupInterval: getDurationEnv("CLEANUP_INTERVAL", time.Hour),
			CleanupMaxAge:   getDurationEnv("CLEANUP_MAX_AGE", 30*24*time.Hour),
		},
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
			Timeout:  getDurationEnv("LLM_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Provider: getEnvOrDefault("STORE_PROVIDER", "sqlite"),
			DSN:      getEnvOrDefault("STORE_DSN", "./companion.db"),
		},
		Cache: CacheConfig{
			URL:     os.Getenv("REDIS_URL"),
			TTL:     getDurationEnv("CACHE_TTL", time.Hour),
			Timeout: getDurationEnv("CACHE_TIMEOUT", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			Max:    getIntEnv("RATE_LIMIT_MAX", 100),
			Window: getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}

	return cfg, nil
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewChatError("Validate", fmt.Errorf("%w: server addr", ErrInvalidConfig))
	}
	switch c.Store.Provider {
	case "sqlite", "postgres", "mysql", "memory":
	default:
		return NewChatError("Validate", fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, c.Store.Provider))
	}
	if c.Store.Provider != "memory" && c.Store.DSN == "" {
		return NewChatError("Validate", fmt.Errorf("%w: store dsn", ErrInvalidConfig))
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv parses an integer environment variable with a default.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getDurationEnv parses a duration environment variable with a default.
// Plain integers are interpreted as seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files, checking the current
// directory first and then up to 5 directory levels up.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
