package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinicedge/clinicedge/internal/dbx"
	"github.com/clinicedge/clinicedge/internal/kv/migrations"
	"github.com/pressly/goose/v3"
)

// SQLiteSlot stores keys in a single kv table. The schema is applied by the
// embedded goose migrations on open. Statements run through the dbx.DBTX
// seam, so the same queries work inside a WithTx transaction.
type SQLiteSlot struct {
	db *sql.DB
	q  dbx.DBTX
}

// OpenSQLiteSlot opens (creating if necessary) the sqlite database at dsn and
// runs pending migrations. The caller owns the returned slot and must Close it.
func OpenSQLiteSlot(ctx context.Context, dsn string) (*SQLiteSlot, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite slot: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite slot: %w", err)
	}

	return NewSQLiteSlot(db), nil
}

// NewSQLiteSlot wraps an already-open database. Mostly a test seam; prefer
// OpenSQLiteSlot.
func NewSQLiteSlot(db *sql.DB) *SQLiteSlot {
	return &SQLiteSlot{db: db, q: db}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (s *SQLiteSlot) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteSlot) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := s.q.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSlot) Delete(ctx context.Context, key string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSlot) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction on the underlying database.
func (s *SQLiteSlot) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}
