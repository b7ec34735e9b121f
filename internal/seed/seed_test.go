package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Simplici0/quotewizard/internal/db"
	"github.com/Simplici0/quotewizard/internal/migrations"
)

func newSeedTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "seed-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := migrations.Up(context.Background(), database, ""); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()
	database := newSeedTestDB(t)

	cfg := Config{
		TenantID:       "default",
		AirtableBaseID: "appDefault",
		AirtableAPIKey: "patSecret",
	}

	for i := 0; i < 10; i++ {
		stats, err := Run(context.Background(), database, cfg)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 1 {
				t.Fatalf("expected 1 insert in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 || stats.Updates != 0 {
			t.Fatalf("expected no changes in iteration %d, got %+v", i, stats)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM tenants WHERE id = ?`, "default", 1)
	assertCount(t, database, `SELECT COUNT(*) FROM tenants WHERE subdomain = ?`, "default", 1)
}

func TestRunRefreshesCredentials(t *testing.T) {
	t.Parallel()
	database := newSeedTestDB(t)

	if _, err := Run(context.Background(), database, Config{TenantID: "default", AirtableBaseID: "appOld"}); err != nil {
		t.Fatalf("first seed: %v", err)
	}

	stats, err := Run(context.Background(), database, Config{TenantID: "default", AirtableBaseID: "appNew"})
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if stats.Updates != 1 || stats.Inserts != 0 {
		t.Fatalf("expected 1 update, got %+v", stats)
	}

	// An empty value does not wipe what is stored.
	stats, err = Run(context.Background(), database, Config{TenantID: "default"})
	if err != nil {
		t.Fatalf("third seed: %v", err)
	}
	if stats.Updates != 0 {
		t.Fatalf("expected no update, got %+v", stats)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM tenants WHERE airtable_base_id = ?`, "appNew", 1)
}

func TestRunWithoutTenantIsNoop(t *testing.T) {
	t.Parallel()
	database := newSeedTestDB(t)

	stats, err := Run(context.Background(), database, Config{})
	if err != nil {
		t.Fatalf("run seed: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM tenants`, nil, 0)
}

func assertCount(t *testing.T, database *sql.DB, query string, arg any, want int) {
	t.Helper()

	var got int
	var err error
	if arg == nil {
		err = database.QueryRow(query).Scan(&got)
	} else {
		err = database.QueryRow(query, arg).Scan(&got)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if got != want {
		t.Fatalf("count=%d, want %d (%s)", got, want, query)
	}
}
