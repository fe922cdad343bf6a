// Package db provides PostgreSQL-backed repositories for the delay engine.
// All repositories accept a DBTX interface that is satisfied by both
// *pgxpool.Pool and pgx.Tx, so the same code works inside or outside a
// transaction.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation checks for PostgreSQL error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Store bundles the repositories the monitor needs behind one value.
type Store struct {
	*SiteRepository
	*DelayRepository
	*AlertRepository
	*ReadingRepository
}

// NewStore wires every repository to the same connection.
func NewStore(db DBTX) *Store {
	return &Store{
		SiteRepository:    NewSiteRepository(db),
		DelayRepository:   NewDelayRepository(db),
		AlertRepository:   NewAlertRepository(db),
		ReadingRepository: NewReadingRepository(db),
	}
}
