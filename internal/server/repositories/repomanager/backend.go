package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fooddelivery/internal/dbx"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/memory"
	"github.com/jmoiron/sqlx"
)

// MemoryDSN selects the in-process backend.
const MemoryDSN = "memory://"

// Backend bundles what services need from storage: a repository factory,
// a handle for reads outside transactions and a Transactor for units of work.
type Backend struct {
	Repos      RepositoryManager
	DB         dbx.DBTX
	Transactor dbx.Transactor

	close func() error
}

// Close releases the underlying connection pool, if any.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openDB is a seam for tests.
var openDB = func(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return sqlx.ConnectContext(ctx, "pgx", dsn)
}

// Open connects to the backend named by dsn and applies migrations.
// An empty dsn or MemoryDSN yields the in-process backend.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	if dsn == "" || dsn == MemoryDSN {
		m := memory.NewManager()
		return &Backend{Repos: m, Transactor: m}, nil
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	rm := NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &Backend{
		Repos:      rm,
		DB:         db,
		Transactor: dbx.NewSQLTransactor(db),
		close:      db.Close,
	}, nil
}
