package tenantconfig

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/cache"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

// Cache key prefixes; keys are <prefix><tenant id>.
const (
	keyPricing  = "pricing:"
	keyServices = "services:"
	keyFields   = "fields:"
)

// Loader serves tenant configuration from a cache, falling back to a Source on a miss.
type Loader struct {
	source Source
	cache  cache.Cache
	ttl    time.Duration
	log    *zap.Logger
}

// NewLoader caches src's results in c for ttl.
func NewLoader(src Source, c cache.Cache, ttl time.Duration, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Loader{source: src, cache: c, ttl: ttl, log: log.Named("tenantconfig")}
}

// Rules returns the tenant's pricing rules.
func (l *Loader) Rules(ctx context.Context, t tenant.Tenant) ([]pricing.Rule, error) {
	return load(ctx, l, keyPricing+t.ID, func() ([]pricing.Rule, error) { return l.source.Rules(ctx, t) })
}

// Services returns the tenant's service metadata.
func (l *Loader) Services(ctx context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error) {
	return load(ctx, l, keyServices+t.ID, func() ([]pricing.ServiceConfig, error) { return l.source.Services(ctx, t) })
}

// FormFields returns the tenant's wizard questions.
func (l *Loader) FormFields(ctx context.Context, t tenant.Tenant) ([]FormField, error) {
	return load(ctx, l, keyFields+t.ID, func() ([]FormField, error) { return l.source.FormFields(ctx, t) })
}

// Invalidate drops every cached entry for tenantID.
func (l *Loader) Invalidate(ctx context.Context, tenantID string) error {
	if err := l.cache.Invalidate(ctx, keyPricing+tenantID, keyServices+tenantID, keyFields+tenantID); err != nil {
		return fmt.Errorf("invalidate tenant %s config: %w", tenantID, err)
	}
	l.log.Info("tenant config invalidated", zap.String("tenant", tenantID))
	return nil
}

// load reads key from the cache or calls fetch and stores its result. Cache failures are
// logged and bypassed.
func load[T any](ctx context.Context, l *Loader, key string, fetch func() ([]T, error)) ([]T, error) {
	var cached []T
	ok, err := l.cache.Get(ctx, key, &cached)
	if err != nil {
		l.log.Warn("config cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	v, err := fetch()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if v == nil {
		v = []T{}
	}
	if err := l.cache.Set(ctx, key, v, l.ttl); err != nil {
		l.log.Warn("config cache write failed", zap.String("key", key), zap.Error(err))
	}
	l.log.Debug("tenant config loaded", zap.String("key", key), zap.Int("entries", len(v)))
	return v, nil
}
