package tenantconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/quotewizard/internal/cache"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

type countingSource struct {
	calls map[string]int
	rules []pricing.Rule
	err   error
}

func (s *countingSource) Rules(_ context.Context, t tenant.Tenant) ([]pricing.Rule, error) {
	s.calls["rules:"+t.ID]++
	return s.rules, s.err
}

func (s *countingSource) Services(_ context.Context, t tenant.Tenant) ([]pricing.ServiceConfig, error) {
	s.calls["services:"+t.ID]++
	return nil, s.err
}

func (s *countingSource) FormFields(_ context.Context, t tenant.Tenant) ([]FormField, error) {
	s.calls["fields:"+t.ID]++
	return []FormField{{ID: "q1"}}, s.err
}

func TestLoaderCachesPerTenant(t *testing.T) {
	src := &countingSource{
		calls: map[string]int{},
		rules: []pricing.Rule{{ServiceID: "advisory", PricingRuleID: "adv", BasePrice: 500}},
	}
	l := NewLoader(src, cache.NewMemory(), time.Hour, nil)
	ctx := context.Background()
	acme := tenant.Tenant{ID: "acme"}
	other := tenant.Tenant{ID: "other"}

	for i := 0; i < 3; i++ {
		rules, err := l.Rules(ctx, acme)
		require.NoError(t, err)
		assert.Equal(t, src.rules, rules)
	}
	_, err := l.Rules(ctx, other)
	require.NoError(t, err)

	services, err := l.Services(ctx, acme)
	require.NoError(t, err)
	assert.NotNil(t, services)
	_, err = l.Services(ctx, acme)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls["rules:acme"])
	assert.Equal(t, 1, src.calls["rules:other"])
	assert.Equal(t, 1, src.calls["services:acme"])

	require.NoError(t, l.Invalidate(ctx, "acme"))
	_, err = l.Rules(ctx, acme)
	require.NoError(t, err)
	_, err = l.Rules(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls["rules:acme"])
	assert.Equal(t, 1, src.calls["rules:other"])
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{calls: map[string]int{}, err: errors.New("airtable down")}
	l := NewLoader(src, cache.NewMemory(), time.Hour, nil)
	ctx := context.Background()

	_, err := l.FormFields(ctx, tenant.Tenant{ID: "acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields:acme")

	src.err = nil
	fields, err := l.FormFields(ctx, tenant.Tenant{ID: "acme"})
	require.NoError(t, err)
	assert.Len(t, fields, 1)
	assert.Equal(t, 2, src.calls["fields:acme"])
}
