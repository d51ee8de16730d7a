package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.June, 18, 15, 30, 0, 0, time.UTC) // a Wednesday

func TestClassifyIntents(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{"products", "show me my products", IntentProducts},
		{"inventory counts as products", "what's low on inventory?", IntentProducts},
		{"orders", "how many unfulfilled orders do I have", IntentOrders},
		{"customers", "list my repeat customers", IntentCustomers},
		{"collections", "what collections do I have", IntentCollections},
		{"analytics", "what's my revenue this month", IntentAnalytics},
		{"help", "what can you do?", IntentHelp},
		{"greeting maps to help", "hello", IntentHelp},
		{"gibberish", "asdf qwerty zxcv", IntentUnknown},
		{"empty", "", IntentUnknown},
		{"whitespace only", "   \t  ", IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyAt(tt.message, testNow)
			assert.Equal(t, tt.want, got.Intent)
		})
	}
}

func TestClassifyTieGoesToEarlierIntent(t *testing.T) {
	// "order" (orders, 3) vs "product" (products, 3): orders is declared
	// first and wins the tie.
	got := ClassifyAt("order for a product", testNow)
	assert.Equal(t, IntentOrders, got.Intent)
}

func TestClassifyConfidence(t *testing.T) {
	weak := ClassifyAt("items", testNow)
	strong := ClassifyAt("show products inventory stock sku", testNow)

	require.Equal(t, IntentProducts, weak.Intent)
	require.Equal(t, IntentProducts, strong.Intent)
	assert.Greater(t, strong.Confidence, weak.Confidence)
	assert.LessOrEqual(t, strong.Confidence, 1.0)

	unknown := ClassifyAt("asdf qwerty", testNow)
	assert.Zero(t, unknown.Confidence)
}

func TestExtractLimit(t *testing.T) {
	tests := []struct {
		message string
		want    int
	}{
		{"show me my top 5 products", 5},
		{"first 20 orders", 20},
		{"10 customers", 10},
		{"top 500 products", 50},
		{"show my products", 0},
		{"show orders from the last 30 days", 0},
		{"last 5 orders from the last 30 days", 5},
	}

	for _, tt := range tests {
		got := ClassifyAt(tt.message, testNow)
		assert.Equal(t, tt.want, got.Entities.Limit, "message: %q", tt.message)
	}
}

func TestExtractStatus(t *testing.T) {
	got := ClassifyAt("show me unfulfilled orders", testNow)
	assert.Equal(t, "unfulfilled", got.Entities.Status)

	got = ClassifyAt("list canceled orders", testNow)
	assert.Equal(t, "cancelled", got.Entities.Status, "US spelling is normalized")

	got = ClassifyAt("show me my orders", testNow)
	assert.Empty(t, got.Entities.Status)
}

func TestExtractSearchTerm(t *testing.T) {
	got := ClassifyAt(`find products named "Blue Hoodie"`, testNow)
	assert.Equal(t, "Blue Hoodie", got.Entities.SearchTerm)

	got = ClassifyAt("find the product called Blue Hoodie", testNow)
	assert.Equal(t, "Blue Hoodie", got.Entities.SearchTerm)

	got = ClassifyAt("show me my products", testNow)
	assert.Empty(t, got.Entities.SearchTerm)
}

func TestExtractPeriod(t *testing.T) {
	dayStart := time.Date(2025, time.June, 18, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		message   string
		wantSince time.Time
		wantUntil time.Time
	}{
		{"today", "sales today", dayStart, testNow},
		{"yesterday", "orders yesterday", dayStart.AddDate(0, 0, -1), dayStart},
		{"this week starts monday", "revenue this week", time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC), testNow},
		{"this month", "sales this month", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), testNow},
		{"last month", "revenue last month", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)},
		{"last n days", "orders in the last 7 days", dayStart.AddDate(0, 0, -7), testNow},
		{"no period", "show my orders", time.Time{}, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyAt(tt.message, testNow)
			assert.Equal(t, tt.wantSince, got.Entities.Since)
			assert.Equal(t, tt.wantUntil, got.Entities.Until)
		})
	}
}

func TestQueryable(t *testing.T) {
	assert.True(t, IntentProducts.Queryable())
	assert.True(t, IntentAnalytics.Queryable())
	assert.False(t, IntentHelp.Queryable())
	assert.False(t, IntentUnknown.Queryable())
}
