package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	logx "github.com/storewise-ai/server/pkg/logger"
)

// Store provides Postgres-backed persistence for shops, subscriptions and
// usage records.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies database connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// migrations run in order; each entry is one version. Never edit an applied
// entry, append a new one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS shops (
		domain         TEXT PRIMARY KEY,
		access_token   TEXT NOT NULL,
		installed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		uninstalled_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		shop_domain TEXT PRIMARY KEY REFERENCES shops(domain) ON DELETE CASCADE,
		plan        TEXT NOT NULL DEFAULT 'free',
		changed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		shop_domain   TEXT NOT NULL,
		period        TEXT NOT NULL,
		messages_used INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (shop_domain, period)
	)`,
}

// Migrate applies pending migrations inside a transaction, tracked in
// schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
	); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		if _, err := tx.Exec(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		logx.Info().Int("version", version).Msg("applied migration")
	}

	return tx.Commit(ctx)
}
