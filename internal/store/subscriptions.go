package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	errx "github.com/storewise-ai/server/internal/core/error"
)

// Subscription is a shop's current plan.
type Subscription struct {
	ShopDomain string
	Plan       string
	ChangedAt  time.Time
}

// GetSubscription returns the shop's subscription, defaulting to the free
// plan when none has been recorded yet.
func (s *Store) GetSubscription(ctx context.Context, shopDomain string) (*Subscription, error) {
	var sub Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT shop_domain, plan, changed_at
		FROM subscriptions
		WHERE shop_domain = $1`,
		shopDomain,
	).Scan(&sub.ShopDomain, &sub.Plan, &sub.ChangedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Subscription{ShopDomain: shopDomain, Plan: "free"}, nil
	}
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return &sub, nil
}

// SetSubscription records a plan change, effective immediately.
func (s *Store) SetSubscription(ctx context.Context, shopDomain, plan string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (shop_domain, plan, changed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (shop_domain) DO UPDATE
		SET plan = EXCLUDED.plan, changed_at = now()`,
		shopDomain, plan,
	)
	return errx.WrapPostgres(err)
}
