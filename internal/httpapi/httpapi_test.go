package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storewise-ai/server/internal/assistant"
	"github.com/storewise-ai/server/internal/assistant/intent"
	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/billing"
	errx "github.com/storewise-ai/server/internal/core/error"
	"github.com/storewise-ai/server/internal/shopify"
	"github.com/storewise-ai/server/internal/store"
)

const (
	testSecret = "test-app-secret"
	testShop   = "demo.myshopify.com"
)

// fakeStore backs every store-facing interface the API needs.
type fakeStore struct {
	shops       map[string]*store.Shop
	plans       map[string]string
	usage       map[string]int
	uninstalled []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		shops: map[string]*store.Shop{
			testShop: {Domain: testShop, AccessToken: "shpat_test"},
		},
		plans: map[string]string{},
		usage: map[string]int{},
	}
}

func (f *fakeStore) GetShop(_ context.Context, domain string) (*store.Shop, error) {
	s, ok := f.shops[domain]
	if !ok {
		return nil, errx.New(nil, http.StatusNotFound, errx.RedisNotFoundMessage)
	}
	return s, nil
}

func (f *fakeStore) UpsertShop(_ context.Context, domain, token string) error {
	f.shops[domain] = &store.Shop{Domain: domain, AccessToken: token}
	return nil
}

func (f *fakeStore) MarkUninstalled(_ context.Context, domain string) error {
	f.uninstalled = append(f.uninstalled, domain)
	delete(f.shops, domain)
	return nil
}

func (f *fakeStore) GetSubscription(_ context.Context, shopDomain string) (*store.Subscription, error) {
	plan, ok := f.plans[shopDomain]
	if !ok {
		plan = billing.PlanFree
	}
	return &store.Subscription{ShopDomain: shopDomain, Plan: plan}, nil
}

func (f *fakeStore) SetSubscription(_ context.Context, shopDomain, plan string) error {
	f.plans[shopDomain] = plan
	return nil
}

func (f *fakeStore) GetUsage(_ context.Context, shopDomain, period string) (int, error) {
	return f.usage[shopDomain+"/"+period], nil
}

func (f *fakeStore) IncrementUsage(_ context.Context, shopDomain, period string) (int, error) {
	f.usage[shopDomain+"/"+period]++
	return f.usage[shopDomain+"/"+period], nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// fakeRunner echoes a canned reply and records whether credentials were set.
type fakeRunner struct {
	lastInput model.ChatInput
	hadCreds  bool
	err       error
}

func (f *fakeRunner) Invoke(ctx context.Context, in model.ChatInput) (model.ChatResult, error) {
	f.lastInput = in
	_, f.hadCreds = shopify.CredentialsFrom(ctx)
	if f.err != nil {
		return model.ChatResult{}, f.err
	}
	return model.ChatResult{
		ConversationID: in.ConversationID,
		Reply:          "You have 12 products.",
		Intent:         intent.IntentProducts,
	}, nil
}

type fakeConvos struct {
	cleared []string
}

func (f *fakeConvos) AddMessage(context.Context, string, *schema.Message) error { return nil }
func (f *fakeConvos) LoadHistory(_ context.Context, id string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{ConversationID: id}, nil
}
func (f *fakeConvos) ClearHistory(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return nil
}
func (f *fakeConvos) GetMessageCount(context.Context, string) (int, error) { return 0, nil }

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(shopDomain string) {
	f.invalidated = append(f.invalidated, shopDomain)
}

type testEnv struct {
	router      http.Handler
	store       *fakeStore
	runner      *fakeRunner
	convos      *fakeConvos
	invalidator *fakeInvalidator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	runner := &fakeRunner{}
	convos := &fakeConvos{}
	inv := &fakeInvalidator{}

	meter := billing.NewMeter(fs)
	service := assistant.NewService(runner, meter, fs, convos)

	router := NewRouter(Deps{
		Handlers:  NewHandlers(service, meter, fs),
		Webhooks:  NewWebhooks(testSecret, fs, inv),
		AppSecret: testSecret,
		DB:        fs,
	})
	return &testEnv{router: router, store: fs, runner: runner, convos: convos, invalidator: inv}
}

func sessionToken(t *testing.T, shop, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"dest": "https://" + shop,
		"iss":  "https://" + shop + "/admin",
		"exp":  time.Now().Add(time.Minute).Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", token,
		map[string]string{"message": "show my products"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "You have 12 products.", resp.Reply)
	assert.Equal(t, "products", resp.Intent)
	assert.NotEmpty(t, resp.ConversationID, "a conversation id is assigned when absent")

	assert.True(t, env.runner.hadCreds, "shop credentials must reach the pipeline")
	assert.Equal(t, testShop, env.runner.lastInput.ShopDomain)
	assert.Equal(t, 1, env.store.usage[testShop+"/"+time.Now().UTC().Format("2006-01")], "one accepted message meters once")
	assert.Equal(t, chatUsage{Used: 1, Limit: 50}, resp.Usage)
}

func TestChatKeepsConversationID(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", token,
		map[string]string{"conversation_id": "c-42", "message": "orders today"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c-42", resp.ConversationID)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", token,
		map[string]string{"message": "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.store.usage, "rejected messages are not metered")
}

func TestChatQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	period := time.Now().UTC().Format("2006-01")
	env.store.usage[testShop+"/"+period] = billing.PlanByName(billing.PlanFree).MessageLimit

	token := sessionToken(t, testShop, testSecret)
	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", token,
		map[string]string{"message": "show my products"})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestChatUnknownShop(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, "other.myshopify.com", testSecret)

	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", token,
		map[string]string{"message": "show my products"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatPipelineFailureStillMetered(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = errx.New(nil, http.StatusBadGateway, errx.SystemErrorMessage)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", token,
		map[string]string{"message": "show my products"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	period := time.Now().UTC().Format("2006-01")
	assert.Equal(t, 1, env.store.usage[testShop+"/"+period], "accepted messages count even when the pipeline fails")
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/chat", "",
		map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, "wrong-secret")

	rec := doJSON(t, env.router, http.MethodGet, "/api/usage", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"dest": "https://" + testShop,
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodGet, "/api/usage", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsBadDest(t *testing.T) {
	env := newTestEnv(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"dest": "https://evil.example.com",
		"exp":  time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodGet, "/api/usage", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsageEndpoint(t *testing.T) {
	env := newTestEnv(t)
	period := time.Now().UTC().Format("2006-01")
	env.store.usage[testShop+"/"+period] = 7

	token := sessionToken(t, testShop, testSecret)
	rec := doJSON(t, env.router, http.MethodGet, "/api/usage", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp usageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, billing.PlanFree, resp.Plan)
	assert.Equal(t, 7, resp.MessagesUsed)
	assert.Equal(t, 50, resp.MessageLimit)
	assert.Equal(t, period, resp.Period)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodGet, "/api/subscription", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp subscriptionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, billing.PlanFree, resp.Plan.Name)

	rec = doJSON(t, env.router, http.MethodPut, "/api/subscription", token,
		map[string]string{"plan": billing.PlanGrowth})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.router, http.MethodGet, "/api/subscription", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, billing.PlanGrowth, resp.Plan.Name)
	assert.Equal(t, 1000, resp.Plan.MessageLimit)
}

func TestSubscriptionRejectsUnknownPlan(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodPut, "/api/subscription", token,
		map[string]string{"plan": "enterprise"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearConversation(t *testing.T) {
	env := newTestEnv(t)
	token := sessionToken(t, testShop, testSecret)

	rec := doJSON(t, env.router, http.MethodDelete, "/api/conversations/c-42", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"c-42"}, env.convos.cleared)
}

func signWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookAppUninstalled(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/app/uninstalled", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhook(testSecret, body))
	req.Header.Set("X-Shopify-Shop-Domain", testShop)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testShop}, env.store.uninstalled)
	assert.Equal(t, []string{testShop}, env.invalidator.invalidated)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/app/uninstalled", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhook("wrong-secret", body))
	req.Header.Set("X-Shopify-Shop-Domain", testShop)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.store.uninstalled)
}

func TestWebhookShopUpdateInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"myshopify_domain":"` + testShop + `"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shop/update", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhook(testSecret, body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testShop}, env.invalidator.invalidated)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
