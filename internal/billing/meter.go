package billing

import (
	"context"
	"net/http"
	"time"

	errx "github.com/storewise-ai/server/internal/core/error"
	"github.com/storewise-ai/server/internal/store"
	logx "github.com/storewise-ai/server/pkg/logger"
)

// UsageStore is the persistence the meter needs.
type UsageStore interface {
	GetSubscription(ctx context.Context, shopDomain string) (*store.Subscription, error)
	GetUsage(ctx context.Context, shopDomain, period string) (int, error)
	IncrementUsage(ctx context.Context, shopDomain, period string) (int, error)
}

// Meter enforces the monthly message quota per shop.
type Meter struct {
	store UsageStore
	now   func() time.Time
}

func NewMeter(s UsageStore) *Meter {
	return &Meter{store: s, now: time.Now}
}

// Period returns the current billing period key, YYYY-MM in UTC.
func (m *Meter) Period() string {
	return m.now().UTC().Format("2006-01")
}

// Usage reports the shop's plan, current count and limit for this period.
func (m *Meter) Usage(ctx context.Context, shopDomain string) (Plan, int, error) {
	sub, err := m.store.GetSubscription(ctx, shopDomain)
	if err != nil {
		return Plan{}, 0, err
	}
	plan := PlanByName(sub.Plan)
	used, err := m.store.GetUsage(ctx, shopDomain, m.Period())
	if err != nil {
		return Plan{}, 0, err
	}
	return plan, used, nil
}

// Allow checks the quota without consuming it. It returns a 402 AppError when
// the shop has exhausted its plan for the current period.
func (m *Meter) Allow(ctx context.Context, shopDomain string) error {
	plan, used, err := m.Usage(ctx, shopDomain)
	if err != nil {
		return err
	}
	if plan.Unlimited() {
		return nil
	}
	if used >= plan.MessageLimit {
		logx.Warn().
			Str("shop_domain", shopDomain).
			Str("plan", plan.Name).
			Int("used", used).
			Int("limit", plan.MessageLimit).
			Msg("message quota exhausted")
		return &errx.AppError{
			Status:  http.StatusPaymentRequired,
			Message: errx.QuotaExceededMessage,
		}
	}
	return nil
}

// Record consumes one message from the shop's quota. Callers invoke it exactly
// once per accepted merchant message.
func (m *Meter) Record(ctx context.Context, shopDomain string) error {
	used, err := m.store.IncrementUsage(ctx, shopDomain, m.Period())
	if err != nil {
		return err
	}
	logx.Debug().
		Str("shop_domain", shopDomain).
		Int("used", used).
		Msg("metered message")
	return nil
}
