package queries

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storewise-ai/server/internal/assistant/intent"
)

func TestFallbackPerIntent(t *testing.T) {
	for _, in := range []intent.Intent{
		intent.IntentProducts,
		intent.IntentOrders,
		intent.IntentCustomers,
		intent.IntentCollections,
		intent.IntentAnalytics,
	} {
		query, vars, ok := Fallback(intent.Result{Intent: in})
		require.True(t, ok, "intent %s should have a template", in)
		assert.NoError(t, Validate(query), "template for %s must validate", in)
		assert.Equal(t, defaultFirst, vars["first"])
		assert.NotContains(t, vars, "query")
	}
}

func TestFallbackNonQueryable(t *testing.T) {
	for _, in := range []intent.Intent{intent.IntentHelp, intent.IntentUnknown} {
		_, _, ok := Fallback(intent.Result{Intent: in})
		assert.False(t, ok)
	}
}

func TestVariablesLimit(t *testing.T) {
	vars := Variables(intent.Result{
		Intent:   intent.IntentProducts,
		Entities: intent.Entities{Limit: 25},
	})
	assert.Equal(t, 25, vars["first"])
}

func TestSearchQueryBuilding(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)

	vars := Variables(intent.Result{
		Intent: intent.IntentOrders,
		Entities: intent.Entities{
			SearchTerm: "Blue Hoodie",
			Status:     "unfulfilled",
			Since:      since,
			Until:      until,
		},
	})

	q, ok := vars["query"].(string)
	require.True(t, ok)
	assert.Contains(t, q, `"Blue Hoodie"`)
	assert.Contains(t, q, "fulfillment_status:unfulfilled")
	assert.Contains(t, q, "created_at:>='2025-06-01T00:00:00Z'")
	assert.Contains(t, q, "created_at:<='2025-06-18T00:00:00Z'")
}

func TestStatusClauseByIntent(t *testing.T) {
	assert.Equal(t, "fulfillment_status:unfulfilled", statusClause(intent.IntentOrders, "unfulfilled"))
	assert.Equal(t, "financial_status:paid", statusClause(intent.IntentOrders, "paid"))
	assert.Equal(t, "status:open", statusClause(intent.IntentOrders, "open"))
	assert.Equal(t, "status:active", statusClause(intent.IntentProducts, "active"))
}

func TestValidateAccepts(t *testing.T) {
	valid := []string{
		productsQuery,
		`{ shop { name } }`,
		`query Foo($first: Int!) { orders(first: $first) { edges { node { id } } } }`,
	}
	for _, q := range valid {
		assert.NoError(t, Validate(q))
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"mutation", `mutation { productDelete(input: {id: "gid://1"}) { deletedProductId } }`},
		{"mutation hidden in query", `query Foo { shop { name } } mutation Bar { x }`},
		{"subscription", `subscription { orders { id } }`},
		{"not a query", `fragment F on Shop { name }`},
		{"unbalanced open", `query { shop { name }`},
		{"unbalanced close", `query { shop } }`},
		{"oversized", "query {" + strings.Repeat(" x", maxQueryLen) + "}"},
		{"multiple operations", "query A { shop { name } }\nquery B { shop { name } }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.query))
		})
	}
}
