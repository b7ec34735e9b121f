package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/airtable"
	"github.com/Simplici0/quotewizard/internal/cache"
	"github.com/Simplici0/quotewizard/internal/config"
	"github.com/Simplici0/quotewizard/internal/db"
	"github.com/Simplici0/quotewizard/internal/delivery"
	"github.com/Simplici0/quotewizard/internal/httpapi"
	"github.com/Simplici0/quotewizard/internal/logging"
	"github.com/Simplici0/quotewizard/internal/migrations"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/quotes"
	"github.com/Simplici0/quotewizard/internal/seed"
	"github.com/Simplici0/quotewizard/internal/tenant"
	"github.com/Simplici0/quotewizard/internal/tenantconfig"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}
	version, err := migrations.Version(ctx, database, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("database ready", zap.String("path", cfg.DBPath), zap.Int64("schema_version", version))

	stats, err := seed.Run(ctx, database, seed.Config{
		TenantID:       cfg.DefaultTenant,
		Subdomain:      cfg.DefaultSubdomain,
		CompanyName:    cfg.DefaultCompanyName,
		AirtableBaseID: cfg.DefaultAirtableBase,
		WebhookURL:     cfg.DefaultWebhookURL,
	})
	if err != nil {
		return fmt.Errorf("seed default tenant: %w", err)
	}
	logger.Info("seed complete", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))

	configCache, closeCache, err := newConfigCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	airtableClient := airtable.NewClient(cfg.AirtableAPIURL, cfg.AirtableAPIKey, nil)
	sources := []tenantconfig.Source{tenantconfig.NewAirtableSource(airtableClient, logger)}
	if cfg.TenantConfigDir != "" {
		sources = append(sources, tenantconfig.NewFileSource(cfg.TenantConfigDir, logger))
	}

	resolver := tenant.Resolver{
		Store:         tenant.NewStore(database),
		RootDomain:    cfg.RootDomain,
		DefaultTenant: cfg.DefaultTenant,
	}
	fanout := delivery.NewFanout(logger,
		delivery.NewWebhook(cfg.WebhookTimeout),
		delivery.NewAirtableCRM(airtableClient),
	)

	handler := httpapi.New(httpapi.Deps{
		Tenants:  resolver,
		Config:   tenantconfig.NewLoader(tenantconfig.FirstOf(sources...), configCache, cfg.ConfigCacheTTL, logger),
		Engine:   pricing.NewEngine(logger),
		Quotes:   quotes.NewStore(database),
		Delivery: fanout,
		Log:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newConfigCache returns Redis when REDIS_ADDR is set, otherwise an in-process cache.
func newConfigCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Cache, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory config cache", zap.Duration("ttl", cfg.ConfigCacheTTL))
		return cache.NewMemory(), func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("connect config cache: %w", err)
	}
	logger.Info("using redis config cache", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.ConfigCacheTTL))
	return cache.NewRedis(client, ""), func() { _ = client.Close() }, nil
}
