// Package storage opens the client's local SQLite database and applies the
// embedded goose migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/fooddelivery/internal/client/migrations"
	"github.com/dmitrijs2005/fooddelivery/internal/filex"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// gooseUpContext is a seam for tests.
var gooseUpContext = goose.UpContext

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return gooseUpContext(ctx, db, ".")
}

// InitDatabase opens dsn with the sqlite driver and migrates it. A single
// connection is kept so that ":memory:" databases survive between calls.
func InitDatabase(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if path := filex.SQLitePath(dsn); path != "" {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return db, nil
}
