package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "PORT", "DB_PATH", "MIGRATIONS_DIR", "ROOT_DOMAIN", "DEFAULT_TENANT",
		"REDIS_ADDR", "REDIS_PASSWORD", "CONFIG_CACHE_TTL", "AIRTABLE_API_URL", "AIRTABLE_API_KEY",
		"TENANT_CONFIG_DIR", "WEBHOOK_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Port != defaultPort {
		t.Fatalf("Port=%q, want %q", cfg.Port, defaultPort)
	}
	if cfg.DBPath != defaultDBPath {
		t.Fatalf("DBPath=%q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.ConfigCacheTTL != defaultCacheTTL {
		t.Fatalf("ConfigCacheTTL=%v, want %v", cfg.ConfigCacheTTL, defaultCacheTTL)
	}
	if !cfg.IsDev() {
		t.Fatal("empty APP_ENV should be development")
	}
	if !cfg.Log.Development {
		t.Fatal("development logging should follow APP_ENV")
	}
	if len(cfg.Warnings) != 1 {
		t.Fatalf("Warnings=%v, want the missing-config warning", cfg.Warnings)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CONFIG_CACHE_TTL", "90s")
	t.Setenv("WEBHOOK_TIMEOUT", "soon")
	t.Setenv("AIRTABLE_API_KEY", "key")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.IsDev() {
		t.Fatal("production should not be development")
	}
	if cfg.Port != "9090" || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ConfigCacheTTL != 90*time.Second {
		t.Fatalf("ConfigCacheTTL=%v, want 90s", cfg.ConfigCacheTTL)
	}
	if cfg.WebhookTimeout != defaultWebhookTimeout {
		t.Fatalf("WebhookTimeout=%v, want default for invalid value", cfg.WebhookTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level=%q, want debug", cfg.Log.Level)
	}
	if len(cfg.Warnings) != 1 {
		t.Fatalf("Warnings=%v, want one for WEBHOOK_TIMEOUT", cfg.Warnings)
	}
}
