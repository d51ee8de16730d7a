package model

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
	"github.com/storewise-ai/server/internal/assistant/intent"
)

// AppState stores per-invocation state for the Eino graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as it is never touched outside handlers.
type AppState struct {
	ConversationID string
	ShopDomain     string
	Intent         intent.Result
	Plan           *QueryPlan
	History        []*schema.Message // mutated only inside Eino state handlers

	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits it

	// Accumulated total LLM cost (USD) across model invocations for this query.
	TotalCostUSD float64
}

// ChatInput represents one merchant message entering the graph.
type ChatInput struct {
	ConversationID string `json:"conversation_id"`
	ShopDomain     string `json:"shop_domain"`
	Query          string `json:"query"`
}

// PlanSource records which path produced the executed GraphQL.
type PlanSource string

const (
	PlanSourceModel    PlanSource = "model"
	PlanSourceTemplate PlanSource = "template"
)

// QueryPlan is the parsed output of the planner stage: the Admin GraphQL to
// run, its variables, and where it came from.
type QueryPlan struct {
	Intent    intent.Result
	GraphQL   string
	Variables map[string]any
	Source    PlanSource
	Note      string
}

// QueryResult carries the executed payload into the summary stage.
type QueryResult struct {
	Plan      QueryPlan
	Payload   json.RawMessage
	FromCache bool
}

// ChatResult is what the runner hands back to the HTTP layer.
type ChatResult struct {
	ConversationID string
	Reply          string
	Intent         intent.Intent
	CostUSD        float64
}
