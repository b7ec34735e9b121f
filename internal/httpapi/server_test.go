package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Simplici0/quotewizard/internal/cache"
	"github.com/Simplici0/quotewizard/internal/db"
	"github.com/Simplici0/quotewizard/internal/delivery"
	"github.com/Simplici0/quotewizard/internal/migrations"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/quotes"
	"github.com/Simplici0/quotewizard/internal/tenant"
	"github.com/Simplici0/quotewizard/internal/tenantconfig"
)

const acmeConfig = `
services:
  - serviceId: individual-tax
    title: Individual Tax Return
    displayOrder: 1
  - serviceId: bookkeeping
    title: Bookkeeping
    displayOrder: 2
    minimumMonthlyFee: 500
pricing:
  - serviceId: individual-tax
    pricingRuleId: ind-base
    pricingType: Base Service
    billingFrequency: One-Time Fee
    active: true
    basePrice: 300
  - serviceId: bookkeeping
    pricingRuleId: bk-base
    pricingType: Base Service
    billingFrequency: Monthly
    active: true
    basePrice: 250
formFields:
  - id: entityType
    section: businessTax
    label: Entity type
    type: select
    options: [LLC, S-Corp]
`

type testEnv struct {
	handler  http.Handler
	quotes   *quotes.Store
	webhooks *atomic.Int32
}

func newTestEnv(t *testing.T, webhookStatus int) *testEnv {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	if err := migrations.Up(context.Background(), database, ""); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	var webhooks atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhooks.Add(1)
		w.WriteHeader(webhookStatus)
	}))
	t.Cleanup(hook.Close)

	tenants := tenant.NewStore(database)
	for _, tn := range []tenant.Tenant{
		{ID: "default", Name: "Quote Wizard", Subdomain: "app", Active: true},
		{ID: "acme", Name: "Acme CPA", Subdomain: "acme", Active: true, WebhookURL: hook.URL,
			Branding: tenant.Branding{CompanyName: "Acme CPA", PrimaryColor: "#123456"}},
	} {
		if err := tenants.Upsert(context.Background(), tn); err != nil {
			t.Fatalf("upsert tenant %s: %v", tn.ID, err)
		}
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "acme.yaml"), []byte(acmeConfig), 0o644); err != nil {
		t.Fatalf("write tenant config: %v", err)
	}

	store := quotes.NewStore(database)
	handler := New(Deps{
		Tenants:  tenant.Resolver{Store: tenants, RootDomain: "quotes.test", DefaultTenant: "default"},
		Config:   tenantconfig.NewLoader(tenantconfig.NewFileSource(dir, nil), cache.NewMemory(), time.Minute, nil),
		Engine:   pricing.NewEngine(nil),
		Quotes:   store,
		Delivery: delivery.NewFanout(nil, delivery.NewWebhook(time.Second)),
		Now:      func() time.Time { return time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC) },
	})
	return &testEnv{handler: handler, quotes: store, webhooks: &webhooks}
}

func (e *testEnv) do(t *testing.T, method, host, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Host = host
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

const acmeForm = `{"formData":{
	"firstName":"Ana","lastName":"Diaz","email":"ana@example.com","company":"Diaz Design",
	"services":["individual-tax","bookkeeping"]
}}`

func TestHealth(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	rec := env.do(t, http.MethodGet, "anything.example", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTenantResolvedFromHost(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodGet, "acme.quotes.test", "/api/tenant", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[tenantResponse](t, rec)
	if got.ID != "acme" || got.Branding.PrimaryColor != "#123456" {
		t.Fatalf("unexpected tenant: %+v", got)
	}
	if strings.Contains(rec.Body.String(), "webhook") {
		t.Fatalf("tenant response leaks credentials: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "localhost:8080", "/api/tenant", "")
	if got := decode[tenantResponse](t, rec); got.ID != "default" {
		t.Fatalf("expected default tenant for localhost, got %+v", got)
	}

	rec = env.do(t, http.MethodGet, "nobody.quotes.test", "/api/tenant", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tenant, got %d", rec.Code)
	}
}

func TestFormFields(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodGet, "acme.quotes.test", "/api/form-fields", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Fields []tenantconfig.FormField `json:"fields"`
	}](t, rec)
	if len(got.Fields) != 1 || got.Fields[0].Path() != "businessTax.entityType" {
		t.Fatalf("unexpected fields: %+v", got.Fields)
	}
}

func TestCalculateDoesNotStore(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodPost, "acme.quotes.test", "/api/quotes/calculate", acmeForm)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	q := decode[pricing.QuoteData](t, rec)
	if q.TotalMonthlyFees != 500 || q.TotalOneTimeFees != 300 || q.TotalAnnual != 6300 {
		t.Fatalf("unexpected totals: monthly=%v one-time=%v annual=%v", q.TotalMonthlyFees, q.TotalOneTimeFees, q.TotalAnnual)
	}
	if len(q.Services) != 2 || q.Services[0].ServiceID != "individual-tax" {
		t.Fatalf("unexpected services: %+v", q.Services)
	}

	list, err := env.quotes.List(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("list quotes: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("calculate must not store quotes, found %d", len(list))
	}
}

func TestCalculateWithoutConfigUsesFallback(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodPost, "localhost", "/api/quotes/calculate", `{"formData":{"services":[]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if q := decode[pricing.QuoteData](t, rec); !q.Fallback {
		t.Fatalf("expected fallback quote, got %+v", q)
	}
}

func TestCalculateRejectsBadBody(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	for _, body := range []string{`{`, `{}`, `[]`} {
		rec := env.do(t, http.MethodPost, "acme.quotes.test", "/api/quotes/calculate", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestSubmitStoresAndDelivers(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodPost, "acme.quotes.test", "/api/quotes", acmeForm)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[submitResponse](t, rec)
	if resp.ID == "" || !resp.Delivered || resp.Quote.TotalAnnual != 6300 {
		t.Fatalf("unexpected submit response: %+v", resp)
	}
	if env.webhooks.Load() != 1 {
		t.Fatalf("expected 1 webhook call, got %d", env.webhooks.Load())
	}

	rec = env.do(t, http.MethodGet, "acme.quotes.test", "/api/quotes?q=diaz", "")
	list := decode[struct {
		Quotes []quotes.Summary `json:"quotes"`
	}](t, rec)
	if len(list.Quotes) != 1 || list.Quotes[0].TotalAnnual != 6300 {
		t.Fatalf("unexpected list: %+v", list.Quotes)
	}

	rec = env.do(t, http.MethodGet, "acme.quotes.test", "/api/quotes/"+resp.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	detail := decode[quotes.Record](t, rec)
	if detail.Contact.Email != "ana@example.com" || detail.DeliveredAt == nil {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	rec = env.do(t, http.MethodGet, "acme.quotes.test", "/api/quotes/"+resp.ID+"/text", "")
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", rec.Header().Get("Content-Type"))
	}
	for _, expected := range []string{"Prepared for: Ana Diaz (Diaz Design)", "First year: $6300.00"} {
		if !strings.Contains(rec.Body.String(), expected) {
			t.Fatalf("expected body to contain %q, got: %s", expected, rec.Body.String())
		}
	}

	rec = env.do(t, http.MethodGet, "localhost", "/api/quotes/"+resp.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from another tenant, got %d", rec.Code)
	}
}

func TestSubmitKeepsQuoteWhenDeliveryFails(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError)

	rec := env.do(t, http.MethodPost, "acme.quotes.test", "/api/quotes", acmeForm)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[submitResponse](t, rec)
	if resp.Delivered || resp.DeliveryError == "" {
		t.Fatalf("expected delivery failure to be reported: %+v", resp)
	}

	stored, err := env.quotes.Get(context.Background(), "acme", resp.ID)
	if err != nil {
		t.Fatalf("quote was not stored: %v", err)
	}
	if stored.DeliveredAt != nil {
		t.Fatalf("failed delivery must not mark quote delivered")
	}
}

func TestSubmitRequiresEmail(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodPost, "acme.quotes.test", "/api/quotes", `{"formData":{"services":["advisory"]}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInvalidateCache(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(t, http.MethodPost, "acme.quotes.test", "/api/admin/cache/invalidate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]string](t, rec); got["tenant"] != "acme" {
		t.Fatalf("unexpected response: %+v", got)
	}
}
