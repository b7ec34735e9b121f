package tenantconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/quotewizard/internal/airtable"
	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

const acmeYAML = `
services:
  - serviceId: bookkeeping
    title: Bookkeeping
    displayOrder: 1
    minimumMonthlyFee: 500
pricing:
  - serviceId: bookkeeping
    pricingRuleId: bk-base
    pricingType: base service
    billingFrequency: monthly
    active: true
    basePrice: 250
  - serviceId: bookkeeping
    pricingRuleId: bk-broken
    pricingType: surcharge
    billingFrequency: monthly
  - serviceId: bookkeeping
    pricingRuleId: bk-base
    pricingType: Add-on
    billingFrequency: monthly
formFields:
  - id: cleanup
    section: bookkeeping
    label: Catch-up work?
    type: select
    displayOrder: 2
  - id: transactions
    section: bookkeeping
    label: Monthly transactions
    type: number
    displayOrder: 1
`

func writeTenantFile(t *testing.T, dir, id, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o644))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeTenantFile(t, dir, "acme", acmeYAML)
	src := NewFileSource(dir, nil)
	ctx := context.Background()
	acme := tenant.Tenant{ID: "acme"}

	rules, err := src.Rules(ctx, acme)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, pricing.PricingTypeBase, rules[0].PricingType)
	assert.Equal(t, pricing.MethodSimple, rules[0].CalculationMethod)

	services, err := src.Services(ctx, acme)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, 500.0, services[0].MinimumMonthlyFee)

	fields, err := src.FormFields(ctx, acme)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "transactions", fields[0].ID)
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()
	writeTenantFile(t, dir, "broken", "services: [")
	src := NewFileSource(dir, nil)
	ctx := context.Background()

	_, err := src.Rules(ctx, tenant.Tenant{ID: "missing"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = src.Rules(ctx, tenant.Tenant{ID: "broken"})
	assert.True(t, apperr.Is(err, apperr.KindConfig))

	_, err = src.Rules(ctx, tenant.Tenant{ID: "../etc/passwd"})
	assert.True(t, apperr.Is(err, apperr.KindInput))
}

func TestLoadDocumentReportsProblems(t *testing.T) {
	dir := t.TempDir()
	writeTenantFile(t, dir, "acme", acmeYAML)

	doc, problems, err := LoadDocument(filepath.Join(dir, "acme.yaml"))
	require.NoError(t, err)
	assert.Len(t, doc.Pricing, 1)
	assert.Len(t, problems, 2)
}

func TestLoadDocumentFlagsUnspacedSubtraction(t *testing.T) {
	dir := t.TempDir()
	writeTenantFile(t, dir, "acme", `
pricing:
  - serviceId: bookkeeping
    pricingRuleId: bk-base
    pricingType: Base Service
    billingFrequency: Monthly
    active: true
    basePrice: 300
  - serviceId: bookkeeping
    pricingRuleId: bk-adjusted
    pricingType: Add-on
    billingFrequency: Monthly
    active: true
    calculationMethod: formula
    formulaExpression: bk-base-100
`)

	doc, problems, err := LoadDocument(filepath.Join(dir, "acme.yaml"))
	require.NoError(t, err)
	require.Len(t, doc.Pricing, 1)
	assert.Equal(t, "bk-base", doc.Pricing[0].PricingRuleID)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Error(), "bk-adjusted")
}

func TestWriteDocumentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	unit := 2.5
	doc := Document{
		Services: []pricing.ServiceConfig{{ServiceID: "bookkeeping", DisplayOrder: 1}},
		Pricing: []pricing.Rule{{
			ServiceID: "bookkeeping", PricingRuleID: "bk-tx", PricingType: pricing.PricingTypeAddOn,
			Billing: pricing.BillingMonthly, Active: true, CalculationMethod: pricing.MethodPerUnit,
			UnitPrice: &unit, QuantitySourceField: "transactions",
		}},
	}
	require.NoError(t, WriteDocument(path, doc))

	got, problems, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, doc.Pricing, got.Pricing)
}

func TestAirtableSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tenant-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/appAcme/Pricing":
			_, _ = w.Write([]byte(`{"records":[
				{"id":"rec1","fields":{"Service ID":"advisory","Pricing Rule ID":"adv","Pricing Type":"Base Service","Billing Frequency":"Monthly","Active":true,"Base Price":500}},
				{"id":"rec2","fields":{"Service ID":"advisory","Pricing Rule ID":"bad","Pricing Type":"??","Billing Frequency":"Monthly"}}
			]}`))
		case "/appAcme/Services":
			_, _ = w.Write([]byte(`{"records":[{"id":"rec3","fields":{"Service ID":"advisory","Title":"Advisory"}}]}`))
		case "/appAcme/Form Fields":
			_, _ = w.Write([]byte(`{"records":[{"id":"rec4","fields":{"Field ID":"services","Label":"Services","Field Type":"multiselect"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewAirtableSource(airtable.NewClient(srv.URL, "global-key", srv.Client()), nil)
	acme := tenant.Tenant{ID: "acme", AirtableBaseID: "appAcme", AirtableAPIKey: "tenant-key"}
	ctx := context.Background()

	rules, err := src.Rules(ctx, acme)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "adv", rules[0].PricingRuleID)

	services, err := src.Services(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, "Advisory", services[0].Title)

	fields, err := src.FormFields(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, "multiselect", fields[0].Type)

	_, err = src.Rules(ctx, tenant.Tenant{ID: "nobase"})
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestFirstOfFallsThroughUnconfiguredSources(t *testing.T) {
	dir := t.TempDir()
	writeTenantFile(t, dir, "acme", acmeYAML)

	airtableOnly := NewAirtableSource(airtable.NewClient("http://127.0.0.1:1", "", nil), nil)
	src := FirstOf(airtableOnly, NewFileSource(dir, nil))

	rules, err := src.Rules(context.Background(), tenant.Tenant{ID: "acme"})
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = src.Rules(context.Background(), tenant.Tenant{ID: "nobody"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
