package queries

import (
	"fmt"
	"strings"
	"time"

	"github.com/storewise-ai/server/internal/assistant/intent"
)

// defaultFirst bounds result pages when the merchant names no count.
const defaultFirst = 10

// Per-intent Admin GraphQL templates. These are the always-available fallback
// when the planner model fails or produces something that does not validate.
const (
	productsQuery = `query StoreProducts($first: Int!, $query: String) {
  products(first: $first, query: $query, sortKey: UPDATED_AT, reverse: true) {
    edges {
      node {
        id
        title
        status
        vendor
        totalInventory
        updatedAt
        priceRangeV2 {
          minVariantPrice {
            amount
            currencyCode
          }
        }
      }
    }
  }
}`

	ordersQuery = `query StoreOrders($first: Int!, $query: String) {
  orders(first: $first, query: $query, sortKey: CREATED_AT, reverse: true) {
    edges {
      node {
        id
        name
        createdAt
        displayFulfillmentStatus
        displayFinancialStatus
        totalPriceSet {
          shopMoney {
            amount
            currencyCode
          }
        }
        customer {
          displayName
        }
      }
    }
  }
}`

	customersQuery = `query StoreCustomers($first: Int!, $query: String) {
  customers(first: $first, query: $query, sortKey: UPDATED_AT, reverse: true) {
    edges {
      node {
        id
        displayName
        email
        numberOfOrders
        amountSpent {
          amount
          currencyCode
        }
        createdAt
      }
    }
  }
}`

	collectionsQuery = `query StoreCollections($first: Int!, $query: String) {
  collections(first: $first, query: $query) {
    edges {
      node {
        id
        title
        handle
        productsCount {
          count
        }
        updatedAt
      }
    }
  }
}`

	analyticsQuery = `query StoreOverview($first: Int!, $query: String) {
  shop {
    name
    currencyCode
  }
  orders(first: $first, query: $query, sortKey: CREATED_AT, reverse: true) {
    edges {
      node {
        id
        name
        createdAt
        totalPriceSet {
          shopMoney {
            amount
            currencyCode
          }
        }
      }
    }
  }
}`
)

var templateByIntent = map[intent.Intent]string{
	intent.IntentProducts:    productsQuery,
	intent.IntentOrders:      ordersQuery,
	intent.IntentCustomers:   customersQuery,
	intent.IntentCollections: collectionsQuery,
	intent.IntentAnalytics:   analyticsQuery,
}

// Fallback renders the template for the intent with variables built from the
// extracted entities. It returns ok=false for non-queryable intents.
func Fallback(res intent.Result) (query string, variables map[string]any, ok bool) {
	tmpl, ok := templateByIntent[res.Intent]
	if !ok {
		return "", nil, false
	}
	return tmpl, Variables(res), true
}

// Variables builds the $first / $query variable map for any of the templates.
func Variables(res intent.Result) map[string]any {
	first := res.Entities.Limit
	if first <= 0 {
		first = defaultFirst
	}
	vars := map[string]any{"first": first}
	if q := searchQuery(res); q != "" {
		vars["query"] = q
	}
	return vars
}

// searchQuery translates entities into Shopify's search syntax.
func searchQuery(res intent.Result) string {
	var parts []string

	if res.Entities.SearchTerm != "" {
		parts = append(parts, fmt.Sprintf("%q", res.Entities.SearchTerm))
	}

	if res.Entities.Status != "" {
		parts = append(parts, statusClause(res.Intent, res.Entities.Status))
	}

	if !res.Entities.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("created_at:>='%s'", res.Entities.Since.UTC().Format(time.RFC3339)))
	}
	if !res.Entities.Until.IsZero() {
		parts = append(parts, fmt.Sprintf("created_at:<='%s'", res.Entities.Until.UTC().Format(time.RFC3339)))
	}

	return strings.Join(parts, " ")
}

func statusClause(in intent.Intent, status string) string {
	if in != intent.IntentOrders && in != intent.IntentAnalytics {
		return "status:" + status
	}
	switch status {
	case "unfulfilled", "fulfilled":
		return "fulfillment_status:" + status
	case "paid", "unpaid", "pending", "refunded":
		return "financial_status:" + status
	default:
		return "status:" + status
	}
}
