// Package tenant stores tenants and maps request hosts onto them.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Simplici0/quotewizard/internal/apperr"
)

// Branding is the presentation data a tenant's quote wizard shows.
type Branding struct {
	CompanyName  string `json:"companyName"`
	LogoURL      string `json:"logoUrl,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
	SupportEmail string `json:"supportEmail,omitempty"`
}

// Tenant is one firm using the wizard. Credentials never leave the server.
type Tenant struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Subdomain    string   `json:"subdomain"`
	CustomDomain string   `json:"customDomain,omitempty"`
	Branding     Branding `json:"branding"`
	Active       bool     `json:"-"`

	AirtableBaseID string `json:"-"`
	AirtableAPIKey string `json:"-"`
	WebhookURL     string `json:"-"`
}

// Store persists tenants in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectTenant = `
	SELECT
		id,
		name,
		subdomain,
		COALESCE(custom_domain, ''),
		airtable_base_id,
		airtable_api_key,
		webhook_url,
		company_name,
		logo_url,
		primary_color,
		support_email,
		active
	FROM tenants
`

func scanTenant(row interface{ Scan(...any) error }) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Subdomain,
		&t.CustomDomain,
		&t.AirtableBaseID,
		&t.AirtableAPIKey,
		&t.WebhookURL,
		&t.Branding.CompanyName,
		&t.Branding.LogoURL,
		&t.Branding.PrimaryColor,
		&t.Branding.SupportEmail,
		&t.Active,
	)
	return t, err
}

// Get loads an active tenant by id.
func (s *Store) Get(ctx context.Context, id string) (Tenant, error) {
	return s.queryOne(ctx, "id", selectTenant+` WHERE id = ? AND active = TRUE`, id)
}

// BySubdomain loads an active tenant by its subdomain label.
func (s *Store) BySubdomain(ctx context.Context, sub string) (Tenant, error) {
	return s.queryOne(ctx, "subdomain", selectTenant+` WHERE subdomain = ? AND active = TRUE`, sub)
}

// ByCustomDomain loads an active tenant by its custom domain.
func (s *Store) ByCustomDomain(ctx context.Context, domain string) (Tenant, error) {
	return s.queryOne(ctx, "domain", selectTenant+` WHERE custom_domain = ? AND active = TRUE`, domain)
}

func (s *Store) queryOne(ctx context.Context, by, query string, arg string) (Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, apperr.NotFound("tenant", by+" "+arg)
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("query tenant by %s: %w", by, err)
	}
	return t, nil
}

// List returns every tenant ordered by id, inactive ones included.
func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx, selectTenant+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// Upsert inserts t or replaces the stored tenant with the same id.
func (s *Store) Upsert(ctx context.Context, t Tenant) error {
	if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Subdomain) == "" {
		return apperr.Input("tenant id and subdomain are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (
			id, name, subdomain, custom_domain,
			airtable_base_id, airtable_api_key, webhook_url,
			company_name, logo_url, primary_color, support_email, active
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			subdomain = excluded.subdomain,
			custom_domain = excluded.custom_domain,
			airtable_base_id = excluded.airtable_base_id,
			airtable_api_key = excluded.airtable_api_key,
			webhook_url = excluded.webhook_url,
			company_name = excluded.company_name,
			logo_url = excluded.logo_url,
			primary_color = excluded.primary_color,
			support_email = excluded.support_email,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`,
		t.ID, t.Name, strings.ToLower(t.Subdomain), nullIfEmpty(strings.ToLower(t.CustomDomain)),
		t.AirtableBaseID, t.AirtableAPIKey, t.WebhookURL,
		t.Branding.CompanyName, t.Branding.LogoURL, t.Branding.PrimaryColor, t.Branding.SupportEmail, t.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert tenant %s: %w", t.ID, err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Resolver maps request hosts to tenants: custom domains first, then <sub>.<RootDomain>.
// The bare root domain and local hosts resolve to DefaultTenant.
type Resolver struct {
	Store         *Store
	RootDomain    string
	DefaultTenant string
}

// Resolve finds the tenant serving host.
func (r Resolver) Resolve(ctx context.Context, host string) (Tenant, error) {
	host = normalizeHost(host)
	if host == "" {
		return Tenant{}, apperr.Input("missing host")
	}
	root := normalizeHost(r.RootDomain)

	t, err := r.Store.ByCustomDomain(ctx, host)
	if err == nil {
		return t, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return Tenant{}, err
	}

	if root != "" && strings.HasSuffix(host, "."+root) {
		sub := strings.TrimSuffix(host, "."+root)
		if i := strings.IndexByte(sub, '.'); i >= 0 {
			sub = sub[:i]
		}
		if sub != "www" {
			return r.Store.BySubdomain(ctx, sub)
		}
	}

	if r.DefaultTenant != "" && (host == root || host == "www."+root || isLocalHost(host)) {
		return r.Store.Get(ctx, r.DefaultTenant)
	}
	return Tenant{}, apperr.NotFound("tenant", "host "+host)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func isLocalHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}
