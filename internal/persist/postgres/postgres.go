// Package postgres opens a sqlstore.Store against Postgres via pgx's
// database/sql driver, for deployments that already run a shared
// Postgres instance and want the session's collections stored there
// alongside everything else.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"docsession/internal/persist/sqlstore"
)

type dialect struct{}

func (dialect) Placeholder(argPos int) string { return "$" + strconv.Itoa(argPos) }

func (dialect) DocPlaceholder(argPos int) string {
	return "$" + strconv.Itoa(argPos) + "::jsonb"
}

func (dialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		doc JSONB NOT NULL,
		PRIMARY KEY (collection, id)
	)`
}

// Open opens connString (a Postgres connection URL or DSN) via pgx's
// stdlib driver and returns a ready sqlstore.Store.
func Open(ctx context.Context, connString string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return sqlstore.Open(ctx, db, dialect{})
}
