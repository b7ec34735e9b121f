package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// Up runs all pending SQL migrations. An empty migrationsDir uses the migrations compiled into
// the binary.
func Up(ctx context.Context, db *sql.DB, migrationsDir string) error {
	provider, err := newProvider(db, migrationsDir)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run goose up migrations: %w", err)
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB, migrationsDir string) (int64, error) {
	provider, err := newProvider(db, migrationsDir)
	if err != nil {
		return 0, err
	}
	v, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func newProvider(db *sql.DB, migrationsDir string) (*goose.Provider, error) {
	var fsys fs.FS
	if migrationsDir == "" {
		sub, err := fs.Sub(embedded, "sql")
		if err != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", err)
		}
		fsys = sub
	} else {
		fsys = os.DirFS(migrationsDir)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return provider, nil
}
