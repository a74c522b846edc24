package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/plant-catalogue/internal/infrastructure/repository/sqlstore"
)

const schemaLockID = int64(2026030101)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func Dialect() sqlstore.Dialect {
	// JSON keeps the document text as written; JSONB would reorder keys.
	return sqlstore.Dialect{Name: "postgres", Placeholder: sq.Dollar, RecordText: "record::text"}
}

func NewCatalogue(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect())
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS catalogue_entries (
	id TEXT PRIMARY KEY,
	storage_key TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	record JSON NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalogue_entries_uploaded_at ON catalogue_entries(uploaded_at DESC, id DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
