package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	errx "github.com/storewise-ai/server/internal/core/error"
	logx "github.com/storewise-ai/server/pkg/logger"
)

const maxWebhookBytes = 256 << 10

// ShopLifecycleStore is the persistence the webhook endpoints need.
type ShopLifecycleStore interface {
	MarkUninstalled(ctx context.Context, domain string) error
	UpsertShop(ctx context.Context, domain, accessToken string) error
}

// ResultInvalidator drops cached query results for a shop.
type ResultInvalidator interface {
	Invalidate(shopDomain string)
}

// Webhooks verifies and dispatches Shopify webhook deliveries.
type Webhooks struct {
	secret  string
	shops   ShopLifecycleStore
	results ResultInvalidator
}

func NewWebhooks(secret string, shops ShopLifecycleStore, results ResultInvalidator) *Webhooks {
	return &Webhooks{secret: secret, shops: shops, results: results}
}

// verify reads the body and checks the X-Shopify-Hmac-Sha256 signature over
// it. Returns the raw body on success.
func (wh *Webhooks) verify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, errx.New(err, http.StatusBadRequest, "unreadable webhook body"))
		return nil, false
	}

	provided, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Shopify-Hmac-Sha256"))
	if err != nil || len(provided) == 0 {
		writeError(w, r, errx.New(err, http.StatusUnauthorized, "missing webhook signature"))
		return nil, false
	}

	mac := hmac.New(sha256.New, []byte(wh.secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		writeError(w, r, errx.New(nil, http.StatusUnauthorized, "invalid webhook signature"))
		return nil, false
	}
	return body, true
}

// AppUninstalled handles the app/uninstalled topic: the access token is
// revoked by Shopify, so the stored copy is blanked and cached results
// dropped.
func (wh *Webhooks) AppUninstalled(w http.ResponseWriter, r *http.Request) {
	if _, ok := wh.verify(w, r); !ok {
		return
	}

	domain := r.Header.Get("X-Shopify-Shop-Domain")
	if domain == "" {
		writeError(w, r, errx.New(nil, http.StatusBadRequest, "missing shop domain header"))
		return
	}

	if err := wh.shops.MarkUninstalled(r.Context(), domain); err != nil {
		writeError(w, r, err)
		return
	}
	wh.results.Invalidate(domain)

	logx.Info().Str("shop_domain", domain).Msg("app uninstalled")
	w.WriteHeader(http.StatusOK)
}

type shopUpdatePayload struct {
	Domain       string `json:"domain"`
	MyshopifyDom string `json:"myshopify_domain"`
	Name         string `json:"name"`
}

// ShopUpdate handles the shop/update topic. Store attributes can change under
// cached query results, so the shop's cache entries are dropped.
func (wh *Webhooks) ShopUpdate(w http.ResponseWriter, r *http.Request) {
	body, ok := wh.verify(w, r)
	if !ok {
		return
	}

	domain := r.Header.Get("X-Shopify-Shop-Domain")
	var payload shopUpdatePayload
	if err := json.Unmarshal(body, &payload); err == nil && payload.MyshopifyDom != "" {
		domain = payload.MyshopifyDom
	}
	if domain == "" {
		writeError(w, r, errx.New(nil, http.StatusBadRequest, "missing shop domain"))
		return
	}

	wh.results.Invalidate(domain)
	logx.Debug().Str("shop_domain", domain).Msg("shop updated, cache invalidated")
	w.WriteHeader(http.StatusOK)
}
