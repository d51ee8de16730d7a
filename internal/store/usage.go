package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	errx "github.com/storewise-ai/server/internal/core/error"
)

// GetUsage returns the message count for the shop in the given period
// (YYYY-MM, UTC). A missing row means zero usage.
func (s *Store) GetUsage(ctx context.Context, shopDomain, period string) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx, `
		SELECT messages_used
		FROM usage_records
		WHERE shop_domain = $1 AND period = $2`,
		shopDomain, period,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errx.WrapPostgres(err)
	}
	return used, nil
}

// IncrementUsage bumps the period counter by one and returns the new count.
// The UPSERT keeps the counter correct under concurrent chats from the same
// shop.
func (s *Store) IncrementUsage(ctx context.Context, shopDomain, period string) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_records (shop_domain, period, messages_used)
		VALUES ($1, $2, 1)
		ON CONFLICT (shop_domain, period) DO UPDATE
		SET messages_used = usage_records.messages_used + 1
		RETURNING messages_used`,
		shopDomain, period,
	).Scan(&used)
	if err != nil {
		return 0, errx.WrapPostgres(err)
	}
	return used, nil
}
