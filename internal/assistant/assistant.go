package assistant

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/storewise-ai/server/internal/assistant/graph"
	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/billing"
	errx "github.com/storewise-ai/server/internal/core/error"
	"github.com/storewise-ai/server/internal/shopify"
	"github.com/storewise-ai/server/internal/store"
	logx "github.com/storewise-ai/server/pkg/logger"
)

const maxQueryChars = 2000

// ShopStore resolves a shop's Admin API credentials.
type ShopStore interface {
	GetShop(ctx context.Context, domain string) (*store.Shop, error)
}

// Service ties quota enforcement, credential lookup and the chat graph into
// the single entry point the HTTP layer calls per merchant message.
type Service struct {
	runner graph.Runner
	meter  *billing.Meter
	shops  ShopStore
	convos model.ConversationRepository
}

func NewService(runner graph.Runner, meter *billing.Meter, shops ShopStore, convos model.ConversationRepository) *Service {
	return &Service{runner: runner, meter: meter, shops: shops, convos: convos}
}

// HandleMessage runs one merchant message end to end. The message is metered
// exactly once, at acceptance; rejected messages (empty input, quota, unknown
// shop) never consume quota.
func (s *Service) HandleMessage(ctx context.Context, shopDomain, conversationID, query string) (model.ChatResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.ChatResult{}, errx.New(nil, http.StatusBadRequest, "message must not be empty")
	}
	if len(query) > maxQueryChars {
		return model.ChatResult{}, errx.New(nil, http.StatusBadRequest, "message is too long")
	}

	if err := s.meter.Allow(ctx, shopDomain); err != nil {
		return model.ChatResult{}, err
	}

	shop, err := s.shops.GetShop(ctx, shopDomain)
	if err != nil {
		if errx.StatusOf(err) == http.StatusNotFound {
			return model.ChatResult{}, errx.New(err, http.StatusUnauthorized, "shop is not installed")
		}
		return model.ChatResult{}, err
	}
	ctx = shopify.WithCredentials(ctx, shopify.Credentials{
		ShopDomain:  shop.Domain,
		AccessToken: shop.AccessToken,
	})

	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	// The message is accepted at this point and counts against the quota
	// even if the pipeline fails afterwards.
	if err := s.meter.Record(ctx, shopDomain); err != nil {
		logx.Error().Err(err).Str("shop_domain", shopDomain).Msg("failed to record usage")
	}

	return s.runner.Invoke(ctx, model.ChatInput{
		ConversationID: conversationID,
		ShopDomain:     shopDomain,
		Query:          query,
	})
}

// ClearConversation drops stored history for one conversation.
func (s *Service) ClearConversation(ctx context.Context, conversationID string) error {
	return s.convos.ClearHistory(ctx, conversationID)
}
