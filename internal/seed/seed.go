package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Config contains the values required by startup seed.
type Config struct {
	TenantID       string
	Subdomain      string
	CompanyName    string
	AirtableBaseID string
	AirtableAPIKey string
	WebhookURL     string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run executes the startup seed in an idempotent way.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	if cfg.TenantID == "" {
		return Stats{}, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}
	if err := ensureDefaultTenant(ctx, tx, cfg, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}
	return stats, nil
}

// ensureDefaultTenant inserts the default tenant, or refreshes its credentials when the
// environment supplies different ones. Branding edited in the database is left alone.
func ensureDefaultTenant(ctx context.Context, tx *sql.Tx, cfg Config, stats *Stats) error {
	subdomain := cfg.Subdomain
	if subdomain == "" {
		subdomain = cfg.TenantID
	}
	company := cfg.CompanyName
	if company == "" {
		company = "Quote Wizard"
	}

	var baseID, apiKey, webhook string
	err := tx.QueryRowContext(ctx, `
		SELECT airtable_base_id, airtable_api_key, webhook_url
		FROM tenants
		WHERE id = ?
	`, cfg.TenantID).Scan(&baseID, &apiKey, &webhook)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tenants (id, name, subdomain, airtable_base_id, airtable_api_key, webhook_url, company_name, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, TRUE)
		`, cfg.TenantID, company, subdomain, cfg.AirtableBaseID, cfg.AirtableAPIKey, cfg.WebhookURL, company); err != nil {
			return fmt.Errorf("insert default tenant: %w", err)
		}
		stats.Inserts++
		return nil
	case err != nil:
		return fmt.Errorf("check default tenant existence: %w", err)
	}

	next := [3]string{baseID, apiKey, webhook}
	for i, v := range []string{cfg.AirtableBaseID, cfg.AirtableAPIKey, cfg.WebhookURL} {
		if v != "" {
			next[i] = v
		}
	}
	if next == [3]string{baseID, apiKey, webhook} {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tenants
		SET
			airtable_base_id = ?,
			airtable_api_key = ?,
			webhook_url = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, next[0], next[1], next[2], cfg.TenantID); err != nil {
		return fmt.Errorf("update default tenant: %w", err)
	}
	stats.Updates++
	return nil
}
