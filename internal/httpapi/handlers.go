package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storewise-ai/server/internal/assistant"
	"github.com/storewise-ai/server/internal/billing"
	errx "github.com/storewise-ai/server/internal/core/error"
	"github.com/storewise-ai/server/internal/store"
)

const maxBodyBytes = 64 << 10

// SubscriptionStore is the persistence the subscription endpoints need.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, shopDomain string) (*store.Subscription, error)
	SetSubscription(ctx context.Context, shopDomain, plan string) error
}

// Handlers bundles the API endpoints and their dependencies.
type Handlers struct {
	service *assistant.Service
	meter   *billing.Meter
	subs    SubscriptionStore
}

func NewHandlers(service *assistant.Service, meter *billing.Meter, subs SubscriptionStore) *Handlers {
	return &Handlers{service: service, meter: meter, subs: subs}
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type chatUsage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

type chatResponse struct {
	ConversationID string    `json:"conversation_id"`
	Reply          string    `json:"reply"`
	Intent         string    `json:"intent"`
	Usage          chatUsage `json:"usage"`
}

// Chat handles POST /api/chat.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	domain, ok := ShopFrom(r.Context())
	if !ok {
		writeError(w, r, errx.New(nil, http.StatusUnauthorized, "missing session token"))
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errx.New(err, http.StatusBadRequest, "invalid request body"))
		return
	}

	result, err := h.service.HandleMessage(r.Context(), domain, req.ConversationID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := chatResponse{
		ConversationID: result.ConversationID,
		Reply:          result.Reply,
		Intent:         string(result.Intent),
	}
	if plan, used, uerr := h.meter.Usage(r.Context(), domain); uerr == nil {
		resp.Usage = chatUsage{Used: used, Limit: plan.MessageLimit}
	}
	writeJSON(w, http.StatusOK, resp)
}

type usageResponse struct {
	Plan         string `json:"plan"`
	Period       string `json:"period"`
	MessagesUsed int    `json:"messages_used"`
	MessageLimit int    `json:"message_limit"`
	Unlimited    bool   `json:"unlimited"`
}

// Usage handles GET /api/usage.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	domain, ok := ShopFrom(r.Context())
	if !ok {
		writeError(w, r, errx.New(nil, http.StatusUnauthorized, "missing session token"))
		return
	}

	plan, used, err := h.meter.Usage(r.Context(), domain)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Plan:         plan.Name,
		Period:       h.meter.Period(),
		MessagesUsed: used,
		MessageLimit: plan.MessageLimit,
		Unlimited:    plan.Unlimited(),
	})
}

type subscriptionResponse struct {
	Plan billing.Plan `json:"plan"`
}

// GetSubscription handles GET /api/subscription.
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	domain, ok := ShopFrom(r.Context())
	if !ok {
		writeError(w, r, errx.New(nil, http.StatusUnauthorized, "missing session token"))
		return
	}

	sub, err := h.subs.GetSubscription(r.Context(), domain)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Plan: billing.PlanByName(sub.Plan)})
}

type updateSubscriptionRequest struct {
	Plan string `json:"plan"`
}

// UpdateSubscription handles PUT /api/subscription.
func (h *Handlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	domain, ok := ShopFrom(r.Context())
	if !ok {
		writeError(w, r, errx.New(nil, http.StatusUnauthorized, "missing session token"))
		return
	}

	var req updateSubscriptionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errx.New(err, http.StatusBadRequest, "invalid request body"))
		return
	}
	if !billing.ValidPlan(req.Plan) {
		writeError(w, r, errx.New(nil, http.StatusBadRequest, "unknown plan"))
		return
	}

	if err := h.subs.SetSubscription(r.Context(), domain, req.Plan); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Plan: billing.PlanByName(req.Plan)})
}

// ClearConversation handles DELETE /api/conversations/{id}.
func (h *Handlers) ClearConversation(w http.ResponseWriter, r *http.Request) {
	if _, ok := ShopFrom(r.Context()); !ok {
		writeError(w, r, errx.New(nil, http.StatusUnauthorized, "missing session token"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, r, errx.New(nil, http.StatusBadRequest, "conversation id is required"))
		return
	}

	if err := h.service.ClearConversation(r.Context(), id); err != nil && errx.StatusOf(err) != http.StatusNotFound {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
