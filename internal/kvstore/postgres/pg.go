// Package postgres contains the PostgreSQL implementation of the kvstore contract.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sirrivault/sirrivault/internal/errs"
)

// PgxPool is a minimal abstraction over a Postgres connection pool,
// implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Close shuts down the pool and frees resources.
	Close()
}

// DB wraps a pool to satisfy the store constructor and allow testing.
type DB struct{ Pool PgxPool }

// Store persists records in the kv_records table, one row per (namespace, key).
// Row upserts make every write atomic per key.
type Store struct{ db *DB }

// New constructs a PostgreSQL-backed store.
func New(db *DB) *Store { return &Store{db: db} }

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	const q = `SELECT value FROM kv_records WHERE namespace=$1 AND key=$2`
	var value []byte
	if err := s.db.Pool.QueryRow(ctx, q, namespace, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	const q = `
INSERT INTO kv_records (namespace, key, value, updated_at)
VALUES ($1,$2,$3,now())
ON CONFLICT (namespace, key)
DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	if _, err := s.db.Pool.Exec(ctx, q, namespace, key, value); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	const q = `DELETE FROM kv_records WHERE namespace=$1 AND key=$2`
	tag, err := s.db.Pool.Exec(ctx, q, namespace, key)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	const q = `SELECT key FROM kv_records WHERE namespace=$1`
	rows, err := s.db.Pool.Query(ctx, q, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return keys, nil
}
