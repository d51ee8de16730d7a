package shopify

import "encoding/json"

// Credentials identify a single installed shop.
type Credentials struct {
	ShopDomain  string
	AccessToken string
}

// GraphQLError is a single error entry from the Admin API response envelope.
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// ThrottleStatus reports the shop's query cost bucket.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// CostInfo is the query cost extension attached to Admin API responses.
type CostInfo struct {
	RequestedQueryCost float64        `json:"requestedQueryCost"`
	ActualQueryCost    float64        `json:"actualQueryCost"`
	ThrottleStatus     ThrottleStatus `json:"throttleStatus"`
}

type responseExtensions struct {
	Cost *CostInfo `json:"cost"`
}

type graphQLResponse struct {
	Data       json.RawMessage     `json:"data"`
	Errors     []GraphQLError      `json:"errors"`
	Extensions *responseExtensions `json:"extensions"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

const (
	errCodeThrottled    = "THROTTLED"
	errCodeAccessDenied = "ACCESS_DENIED"
)
