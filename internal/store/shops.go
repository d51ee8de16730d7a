package store

import (
	"context"
	"time"

	errx "github.com/storewise-ai/server/internal/core/error"
)

// Shop is one installed store.
type Shop struct {
	Domain        string
	AccessToken   string
	InstalledAt   time.Time
	UninstalledAt *time.Time
}

// UpsertShop records an install (or reinstall, which clears the uninstall
// marker and refreshes the token).
func (s *Store) UpsertShop(ctx context.Context, domain, accessToken string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO shops (domain, access_token)
		VALUES ($1, $2)
		ON CONFLICT (domain) DO UPDATE
		SET access_token = EXCLUDED.access_token, uninstalled_at = NULL`,
		domain, accessToken,
	)
	return errx.WrapPostgres(err)
}

// GetShop fetches one shop by domain. Uninstalled shops are treated as
// missing so their tokens are never used again.
func (s *Store) GetShop(ctx context.Context, domain string) (*Shop, error) {
	var shop Shop
	err := s.pool.QueryRow(ctx, `
		SELECT domain, access_token, installed_at, uninstalled_at
		FROM shops
		WHERE domain = $1 AND uninstalled_at IS NULL`,
		domain,
	).Scan(&shop.Domain, &shop.AccessToken, &shop.InstalledAt, &shop.UninstalledAt)
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return &shop, nil
}

// MarkUninstalled blanks the token and stamps the uninstall time. Usage and
// subscription history are kept for reinstalls within the billing period.
func (s *Store) MarkUninstalled(ctx context.Context, domain string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE shops
		SET access_token = '', uninstalled_at = now()
		WHERE domain = $1`,
		domain,
	)
	return errx.WrapPostgres(err)
}
