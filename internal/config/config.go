package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Simplici0/quotewizard/internal/logging"
)

const (
	defaultDBPath         = "./dev.db"
	defaultPort           = "8080"
	defaultRootDomain     = "localhost"
	defaultTenant         = "default"
	defaultCacheTTL       = 5 * time.Minute
	defaultWebhookTimeout = 10 * time.Second
	defaultAirtableURL    = "https://api.airtable.com/v0"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env           string
	Port          string
	DBPath        string
	MigrationsDir string

	// RootDomain is the domain tenants are subdomains of, e.g. quotes.example.com.
	RootDomain    string
	DefaultTenant string

	// Default tenant seed values; the Airtable base and webhook are optional.
	DefaultSubdomain    string
	DefaultCompanyName  string
	DefaultAirtableBase string
	DefaultWebhookURL   string

	// RedisAddr selects the Redis config cache. Empty keeps the cache in memory.
	RedisAddr      string
	RedisPassword  string
	ConfigCacheTTL time.Duration

	AirtableAPIURL string
	AirtableAPIKey string
	// TenantConfigDir holds <tenant>.yaml files used when a tenant has no Airtable base.
	TenantConfigDir string

	WebhookTimeout time.Duration

	Log logging.Config

	// Warnings collects problems found while loading; they are logged once a logger exists.
	Warnings []string
}

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "", "dev", "development", "local":
		return true
	}
	return false
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: load local dev environment variables.
	// We don't fail if the file is missing; production should use real env injection.
	_ = loadDotEnv(".env")

	cfg := Config{
		Env:                 os.Getenv("APP_ENV"),
		Port:                envOr("PORT", defaultPort),
		DBPath:              envOr("DB_PATH", defaultDBPath),
		MigrationsDir:       os.Getenv("MIGRATIONS_DIR"),
		RootDomain:          envOr("ROOT_DOMAIN", defaultRootDomain),
		DefaultTenant:       envOr("DEFAULT_TENANT", defaultTenant),
		DefaultSubdomain:    envOr("DEFAULT_TENANT_SUBDOMAIN", "app"),
		DefaultCompanyName:  envOr("DEFAULT_TENANT_NAME", "Quote Wizard"),
		DefaultAirtableBase: os.Getenv("DEFAULT_AIRTABLE_BASE_ID"),
		DefaultWebhookURL:   os.Getenv("DEFAULT_WEBHOOK_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		AirtableAPIURL:      envOr("AIRTABLE_API_URL", defaultAirtableURL),
		AirtableAPIKey:      os.Getenv("AIRTABLE_API_KEY"),
		TenantConfigDir:     os.Getenv("TENANT_CONFIG_DIR"),
		Log: logging.Config{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
			Output: envOr("LOG_OUTPUT", "stderr"),
		},
	}
	cfg.Log.Development = cfg.IsDev()

	cfg.ConfigCacheTTL = cfg.duration("CONFIG_CACHE_TTL", defaultCacheTTL)
	cfg.WebhookTimeout = cfg.duration("WEBHOOK_TIMEOUT", defaultWebhookTimeout)

	if cfg.AirtableAPIKey == "" && cfg.TenantConfigDir == "" {
		cfg.Warnings = append(cfg.Warnings, "neither AIRTABLE_API_KEY nor TENANT_CONFIG_DIR is set; quotes will use default pricing")
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s %q, using %s", key, raw, fallback))
		return fallback
	}
	return d
}
