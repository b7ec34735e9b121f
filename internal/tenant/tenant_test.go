package tenant

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/db"
	"github.com/Simplici0/quotewizard/internal/migrations"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
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
	return NewStore(database), database
}

func seedTenants(t *testing.T, s *Store) {
	t.Helper()
	for _, tn := range []Tenant{
		{ID: "default", Name: "Default", Subdomain: "app", Active: true, Branding: Branding{CompanyName: "Quote Wizard"}},
		{ID: "acme", Name: "Acme CPA", Subdomain: "Acme", CustomDomain: "quotes.acmecpa.com", Active: true, AirtableBaseID: "appAcme"},
		{ID: "gone", Name: "Gone LLP", Subdomain: "gone", Active: false},
	} {
		if err := s.Upsert(context.Background(), tn); err != nil {
			t.Fatalf("upsert %s: %v", tn.ID, err)
		}
	}
}

func TestResolve(t *testing.T) {
	store, _ := newTestStore(t)
	seedTenants(t, store)
	r := Resolver{Store: store, RootDomain: "quotes.example.com", DefaultTenant: "default"}

	tests := []struct {
		host string
		want string
	}{
		{"quotes.acmecpa.com", "acme"},
		{"QUOTES.ACMECPA.COM:443", "acme"},
		{"acme.quotes.example.com", "acme"},
		{"acme.quotes.example.com.", "acme"},
		{"quotes.example.com", "default"},
		{"www.quotes.example.com", "default"},
		{"localhost:8080", "default"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), tt.host)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.host, err)
		}
		if got.ID != tt.want {
			t.Fatalf("Resolve(%q)=%q, want %q", tt.host, got.ID, tt.want)
		}
	}
}

func TestResolveUnknownAndInactive(t *testing.T) {
	store, _ := newTestStore(t)
	seedTenants(t, store)
	r := Resolver{Store: store, RootDomain: "quotes.example.com", DefaultTenant: "default"}

	for _, host := range []string{"nobody.quotes.example.com", "gone.quotes.example.com", "elsewhere.org"} {
		_, err := r.Resolve(context.Background(), host)
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("Resolve(%q) err=%v, want not found", host, err)
		}
	}

	if _, err := r.Resolve(context.Background(), ""); !apperr.Is(err, apperr.KindInput) {
		t.Fatalf("empty host err=%v, want input error", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	store, _ := newTestStore(t)
	seedTenants(t, store)

	acme, err := store.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("get acme: %v", err)
	}
	if acme.Subdomain != "acme" {
		t.Fatalf("subdomain=%q, want lowercased", acme.Subdomain)
	}

	acme.WebhookURL = "https://hooks.example.com/acme"
	acme.CustomDomain = ""
	if err := store.Upsert(context.Background(), acme); err != nil {
		t.Fatalf("update acme: %v", err)
	}

	got, err := store.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("reload acme: %v", err)
	}
	if got.WebhookURL != "https://hooks.example.com/acme" || got.CustomDomain != "" {
		t.Fatalf("unexpected tenant after update: %+v", got)
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tenants, got %d", len(all))
	}
}

func TestUpsertRequiresIdentity(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Upsert(context.Background(), Tenant{Name: "nameless"}); !apperr.Is(err, apperr.KindInput) {
		t.Fatalf("err=%v, want input error", err)
	}
}
