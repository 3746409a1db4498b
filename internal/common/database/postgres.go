// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"submission-workflow/internal/common/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNoRowsAffected is returned by ExecWithCheck when a guarded statement
// matched nothing.
var ErrNoRowsAffected = errors.New("no rows affected")

// PostgresClient wraps the sqlx connection pool
type PostgresClient struct {
	DB *sqlx.DB
}

// NewPostgres opens a pooled PostgreSQL connection. It does not dial; call
// Ping to verify reachability.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// NewPostgresFromDB wraps an existing handle (sqlmock in tests).
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: sqlx.NewDb(db, "postgres")}
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// ExecWithCheck runs a statement and fails with ErrNoRowsAffected when it
// touched no row.
func (c *PostgresClient) ExecWithCheck(ctx context.Context, query string, args ...interface{}) error {
	res, err := c.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (c *PostgresClient) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
