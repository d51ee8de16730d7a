package intent

import "time"

// Intent names the store-data domain a merchant message is about.
type Intent string

const (
	IntentProducts    Intent = "products"
	IntentOrders      Intent = "orders"
	IntentCustomers   Intent = "customers"
	IntentCollections Intent = "collections"
	IntentAnalytics   Intent = "analytics"
	IntentHelp        Intent = "help"
	IntentUnknown     Intent = "unknown"
)

// String returns the string representation of the intent.
func (i Intent) String() string {
	return string(i)
}

// Queryable reports whether the intent maps to an Admin API query. Help and
// unknown intents short-circuit to a canned response instead.
func (i Intent) Queryable() bool {
	switch i {
	case IntentProducts, IntentOrders, IntentCustomers, IntentCollections, IntentAnalytics:
		return true
	default:
		return false
	}
}

// Entities holds the structured fragments extracted alongside classification.
type Entities struct {
	// Limit is the requested result count, 0 when the message names none.
	Limit int
	// Status filters orders (open, closed, cancelled, unfulfilled, unpaid).
	Status string
	// SearchTerm is a quoted or "named X" free-text filter.
	SearchTerm string
	// Since/Until bound the query period; zero values mean unbounded.
	Since time.Time
	Until time.Time
}

// Result is the outcome of classifying one merchant message.
type Result struct {
	Intent     Intent
	Confidence float64
	Entities   Entities
}
