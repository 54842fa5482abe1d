// Package sqlite opens a sqlstore.Store against a modernc.org/sqlite
// database file (or ":memory:"), for deployments that want a durable
// single-process session store without running a separate database
// server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"docsession/internal/persist/sqlstore"
)

type dialect struct{}

func (dialect) Placeholder(int) string    { return "?" }
func (dialect) DocPlaceholder(int) string { return "?" }

func (dialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`
}

// Open opens dsn (a file path, or ":memory:") with the modernc.org/sqlite
// driver and returns a ready sqlstore.Store.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	// modernc.org/sqlite serializes writers internally; a single
	// connection avoids SQLITE_BUSY under concurrent flushes.
	db.SetMaxOpenConns(1)
	return sqlstore.Open(ctx, db, dialect{})
}
