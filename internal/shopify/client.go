package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errx "github.com/storewise-ai/server/internal/core/error"
	logx "github.com/storewise-ai/server/pkg/logger"
)

// Config holds Admin API client settings, sourced from the environment.
type Config struct {
	APIVersion     string `envconfig:"SHOPIFY_API_VERSION" default:"2025-07"`
	TimeoutSeconds int    `envconfig:"SHOPIFY_TIMEOUT_SECONDS" default:"30"`
	MaxRetries     int    `envconfig:"SHOPIFY_MAX_RETRIES" default:"3"`
}

// Client executes read-only GraphQL queries against the Shopify Admin API on
// behalf of an installed shop. It decodes the cost extension and waits out
// throttles instead of surfacing them when retries remain.
type Client struct {
	httpClient *http.Client
	version    string
	maxRetries int

	// endpointOverride replaces the per-shop URL in tests.
	endpointOverride string
}

func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		version:    cfg.APIVersion,
		maxRetries: cfg.MaxRetries,
	}
}

// NewClientWithEndpoint builds a client pinned to a fixed endpoint. Tests use
// this to point at an httptest server.
func NewClientWithEndpoint(cfg Config, endpoint string) *Client {
	c := NewClient(cfg)
	c.endpointOverride = endpoint
	return c
}

func (c *Client) endpoint(shopDomain string) string {
	if c.endpointOverride != "" {
		return c.endpointOverride
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopDomain, c.version)
}

// Query runs a read-only Admin GraphQL query and returns the raw data payload.
// Mutations are rejected before any network call is made.
func (c *Client) Query(ctx context.Context, creds Credentials, query string, variables map[string]any) (json.RawMessage, *CostInfo, error) {
	if !IsReadOnly(query) {
		return nil, nil, errx.New(fmt.Errorf("refusing non-query operation"), http.StatusBadRequest, "only read queries are supported")
	}

	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		data, cost, wait, err := c.do(ctx, creds, query, variables)
		if err == nil {
			return data, cost, nil
		}
		lastErr = err
		if wait <= 0 {
			return nil, nil, err
		}

		logx.Warn().
			Str("shop", creds.ShopDomain).
			Dur("wait", wait).
			Int("attempt", attempt+1).
			Msg("admin api throttled, backing off")

		select {
		case <-ctx.Done():
			return nil, nil, errx.New(ctx.Err(), http.StatusGatewayTimeout, ShopifyTimeoutMessage)
		case <-time.After(wait):
		}
	}
	return nil, nil, lastErr
}

// do performs a single request. A positive wait duration on the error return
// marks the failure as retryable throttling.
func (c *Client) do(ctx context.Context, creds Credentials, query string, variables map[string]any) (json.RawMessage, *CostInfo, time.Duration, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(creds.ShopDomain), bytes.NewReader(body))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("build admin api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, 0, errx.New(err, http.StatusBadGateway, errx.ShopifyErrorMessage)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, 0, errx.New(err, http.StatusBadGateway, errx.ShopifyErrorMessage)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(resp.Header.Get("Retry-After"))
		return nil, nil, wait, errx.New(fmt.Errorf("admin api 429"), http.StatusTooManyRequests, errx.ShopifyThrottledMessage)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, 0, errx.New(fmt.Errorf("admin api status %d", resp.StatusCode), http.StatusUnauthorized, "shop access token rejected")
	case resp.StatusCode != http.StatusOK:
		return nil, nil, 0, errx.New(fmt.Errorf("admin api status %d", resp.StatusCode), http.StatusBadGateway, errx.ShopifyErrorMessage)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, 0, errx.New(fmt.Errorf("decode admin api response: %w", err), http.StatusBadGateway, errx.ShopifyErrorMessage)
	}

	var cost *CostInfo
	if envelope.Extensions != nil {
		cost = envelope.Extensions.Cost
	}

	if len(envelope.Errors) > 0 {
		for _, gqlErr := range envelope.Errors {
			switch gqlErr.Extensions.Code {
			case errCodeThrottled:
				return nil, cost, throttleWait(cost), errx.New(fmt.Errorf("admin api throttled: %s", gqlErr.Message), http.StatusTooManyRequests, errx.ShopifyThrottledMessage)
			case errCodeAccessDenied:
				return nil, cost, 0, errx.New(fmt.Errorf("admin api access denied: %s", gqlErr.Message), http.StatusUnauthorized, "shop access token rejected")
			}
		}
		return nil, cost, 0, errx.New(fmt.Errorf("admin api errors: %s", envelope.Errors[0].Message), http.StatusBadGateway, errx.ShopifyErrorMessage)
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, cost, 0, errx.New(fmt.Errorf("admin api returned no data"), http.StatusBadGateway, errx.ShopifyErrorMessage)
	}

	return envelope.Data, cost, 0, nil
}

const (
	maxResponseBytes = 4 << 20 // 4MB cap on Admin API payloads

	// ShopifyTimeoutMessage is surfaced when the context expires mid-retry.
	ShopifyTimeoutMessage = "shopify admin api timed out"

	defaultThrottleWait = 2 * time.Second
	maxThrottleWait     = 15 * time.Second
)

// throttleWait derives a backoff from the cost extension: the point deficit
// divided by the restore rate, bounded to keep a chat request responsive.
func throttleWait(cost *CostInfo) time.Duration {
	if cost == nil || cost.ThrottleStatus.RestoreRate <= 0 {
		return defaultThrottleWait
	}
	deficit := cost.RequestedQueryCost - cost.ThrottleStatus.CurrentlyAvailable
	if deficit <= 0 {
		return defaultThrottleWait
	}
	wait := time.Duration(deficit/cost.ThrottleStatus.RestoreRate*float64(time.Second)) + 100*time.Millisecond
	if wait > maxThrottleWait {
		return maxThrottleWait
	}
	return wait
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultThrottleWait
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(header), 64)
	if err != nil || secs <= 0 {
		return defaultThrottleWait
	}
	wait := time.Duration(secs * float64(time.Second))
	if wait > maxThrottleWait {
		return maxThrottleWait
	}
	return wait
}

// IsReadOnly reports whether the operation text is a plain query. Anything
// starting with mutation/subscription, or not a query at all, is rejected.
func IsReadOnly(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "{") {
		return true
	}
	first := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == '{'
	})
	if len(first) == 0 {
		return false
	}
	return first[0] == "query"
}
