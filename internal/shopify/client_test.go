package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/storewise-ai/server/internal/core/error"
)

var testCreds = Credentials{ShopDomain: "demo.myshopify.com", AccessToken: "shpat_test"}

func testClient(t *testing.T, handler http.HandlerFunc, maxRetries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithEndpoint(Config{APIVersion: "2025-07", TimeoutSeconds: 5, MaxRetries: maxRetries}, srv.URL)
}

func TestQuerySuccess(t *testing.T) {
	var gotToken string
	var gotBody graphQLRequest

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"shop":{"name":"Demo"}},"extensions":{"cost":{"requestedQueryCost":5,"actualQueryCost":3,"throttleStatus":{"maximumAvailable":2000,"currentlyAvailable":1997,"restoreRate":100}}}}`))
	}, 0)

	data, cost, err := c.Query(context.Background(), testCreds, `{ shop { name } }`, map[string]any{"first": 10})
	require.NoError(t, err)

	assert.JSONEq(t, `{"shop":{"name":"Demo"}}`, string(data))
	assert.Equal(t, "shpat_test", gotToken)
	assert.Equal(t, `{ shop { name } }`, gotBody.Query)
	require.NotNil(t, cost)
	assert.Equal(t, float64(3), cost.ActualQueryCost)
}

func TestQueryRejectsMutations(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("mutation must not reach the network")
	}, 0)

	_, _, err := c.Query(context.Background(), testCreds, `mutation { productDelete(input: {}) { deletedProductId } }`, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestQueryRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":{"shop":{"name":"Demo"}}}`))
	}, 2)

	data, _, err := c.Query(context.Background(), testCreds, `{ shop { name } }`, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shop":{"name":"Demo"}}`, string(data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryThrottledErrorRetries(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}],"extensions":{"cost":{"requestedQueryCost":100,"throttleStatus":{"currentlyAvailable":50,"restoreRate":500}}}}`))
			return
		}
		w.Write([]byte(`{"data":{"orders":{"edges":[]}}}`))
	}, 1)

	data, _, err := c.Query(context.Background(), testCreds, `{ orders(first: 1) { edges { node { id } } } }`, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"orders":{"edges":[]}}`, string(data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryExhaustsRetries(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0.01")
		w.WriteHeader(http.StatusTooManyRequests)
	}, 1)

	_, _, err := c.Query(context.Background(), testCreds, `{ shop { name } }`, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, errx.StatusOf(err))
	assert.Equal(t, errx.ShopifyThrottledMessage, errx.MessageOf(err))
}

func TestQueryUnauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, 2)

	_, _, err := c.Query(context.Background(), testCreds, `{ shop { name } }`, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, errx.StatusOf(err))
}

func TestQueryGraphQLErrors(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"Field 'bogus' doesn't exist","extensions":{"code":"undefinedField"}}]}`))
	}, 0)

	_, _, err := c.Query(context.Background(), testCreds, `{ bogus }`, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	assert.Equal(t, errx.ShopifyErrorMessage, errx.MessageOf(err))
}

func TestQueryNullData(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}, 0)

	_, _, err := c.Query(context.Background(), testCreds, `{ shop { name } }`, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}

func TestThrottleWait(t *testing.T) {
	assert.Equal(t, defaultThrottleWait, throttleWait(nil))

	wait := throttleWait(&CostInfo{
		RequestedQueryCost: 600,
		ThrottleStatus:     ThrottleStatus{CurrentlyAvailable: 100, RestoreRate: 100},
	})
	assert.Equal(t, 5*time.Second+100*time.Millisecond, wait)

	wait = throttleWait(&CostInfo{
		RequestedQueryCost: 10000,
		ThrottleStatus:     ThrottleStatus{CurrentlyAvailable: 0, RestoreRate: 50},
	})
	assert.Equal(t, maxThrottleWait, wait)
}

func TestIsReadOnly(t *testing.T) {
	assert.True(t, IsReadOnly(`{ shop { name } }`))
	assert.True(t, IsReadOnly(`query Foo { shop { name } }`))
	assert.True(t, IsReadOnly("query($first: Int!) { products(first: $first) { edges { node { id } } } }"))
	assert.False(t, IsReadOnly(``))
	assert.False(t, IsReadOnly(`mutation { x }`))
	assert.False(t, IsReadOnly(`subscription { x }`))
	assert.False(t, IsReadOnly(`fragment F on Shop { name }`))
}

func TestCredentialsContext(t *testing.T) {
	_, ok := CredentialsFrom(context.Background())
	assert.False(t, ok)

	ctx := WithCredentials(context.Background(), testCreds)
	got, ok := CredentialsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, testCreds, got)
}
