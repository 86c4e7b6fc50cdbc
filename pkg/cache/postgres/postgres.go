// Package postgres provides a [cache.Backend] stored in a PostgreSQL table.
//
// It suits deployments that already run PostgreSQL for NPC and scene data
// and want histories to survive restarts without adding a Redis server.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/parley/pkg/cache"
)

// Schema is the SQL DDL for the cache_entries table.
const Schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    namespace  TEXT        NOT NULL,
    key        TEXT        NOT NULL,
    value      BYTEA       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, key)
);
`

// DB is the database interface used by [Backend]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface assertion.
var _ cache.Backend = (*Backend)(nil)

// Backend is a table-backed cache. The database handle is owned by the
// caller; [Backend.Close] does not close it.
type Backend struct {
	db DB
}

// New creates a Backend over db. Call [Backend.Migrate] before first use.
func New(db DB) *Backend {
	return &Backend{db: db}
}

// Migrate creates the cache_entries table if it does not already exist.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres cache: migrate: %w", err)
	}
	return nil
}

// Get implements [cache.Backend].
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	const query = `SELECT value FROM cache_entries WHERE namespace = $1 AND key = $2`

	var value []byte
	err := b.db.QueryRow(ctx, query, namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres cache: get: %w", err)
	}
	return value, true, nil
}

// Set implements [cache.Backend] as an upsert.
func (b *Backend) Set(ctx context.Context, namespace, key string, value []byte) error {
	const query = `
		INSERT INTO cache_entries (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := b.db.Exec(ctx, query, namespace, key, value); err != nil {
		return fmt.Errorf("postgres cache: set: %w", err)
	}
	return nil
}

// Close implements [cache.Backend]. It is a no-op.
func (b *Backend) Close() error { return nil }
