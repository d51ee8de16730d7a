package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/storewise-ai/server/internal/assistant/graph/conversations"
	"github.com/storewise-ai/server/internal/assistant/graph/parsers"
	"github.com/storewise-ai/server/internal/assistant/graph/prompts"
	"github.com/storewise-ai/server/internal/assistant/intent"
	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/assistant/queries"
	"github.com/storewise-ai/server/internal/cache"
	"github.com/storewise-ai/server/internal/shopify"
	logx "github.com/storewise-ai/server/pkg/logger"
)

// Graph node names.
const (
	NodeInputConverter   = "input_converter"
	NodePlannerChatModel = "planner_chat_model"
	NodePlanParser       = "plan_parser"
	NodeCannedResponse   = "canned_response"
	NodeQueryExecutor    = "query_executor"
	NodeSummaryAssembler = "summary_assembler"
	NodeSummaryChatModel = "summary_chat_model"
	NodeToolExecutor     = "tool_executor"
)

// NewInputConverterPreHandler creates the pre-handler for the InputConverter
// node: it seeds identity and resets per-invocation counters.
func NewInputConverterPreHandler() func(context.Context, model.ChatInput, *model.AppState) (model.ChatInput, error) {
	return func(ctx context.Context, in model.ChatInput, s *model.AppState) (model.ChatInput, error) {
		s.ConversationID = in.ConversationID
		s.ShopDomain = in.ShopDomain
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		s.Plan = nil
		return in, nil
	}
}

// NewInputConverterNode records the merchant message, classifies its intent
// locally and emits the planner messages. Intent classification never calls
// a model; it is a keyword scan.
func NewInputConverterNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.ChatInput) ([]*schema.Message, error) {
		res := intent.Classify(input.Query)
		logx.Debug().
			Str("conversation_id", input.ConversationID).
			Str("shop", input.ShopDomain).
			Str("intent", res.Intent.String()).
			Float64("confidence", res.Confidence).
			Msg("classified merchant message")

		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Intent = res
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to store intent: %w", err)
		}

		conversationCtx, err := mm.RecordMerchantMessage(ctx, input.ConversationID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("error recording merchant message: %w", err)
		}

		if !res.Intent.Queryable() {
			// The canned branch only needs the history to be saved; give it
			// an empty planner context.
			return []*schema.Message{schema.UserMessage(input.Query)}, nil
		}

		systemPrompt, err := prompts.RenderPlannerSystem(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("render planner system prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}, nil
	})
}

// NewCannedResponseCondition routes help and unclassified messages straight
// to the canned response, everything else to the planner.
func NewCannedResponseCondition() func(context.Context, []*schema.Message) (string, error) {
	return func(ctx context.Context, _ []*schema.Message) (string, error) {
		var res intent.Result
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			res = state.Intent
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to read intent: %w", err)
		}

		if res.Intent.Queryable() {
			return NodePlannerChatModel, nil
		}
		logx.Debug().Str("intent", res.Intent.String()).Msg("routing to canned response")
		return NodeCannedResponse, nil
	}
}

const helpReply = "I can answer questions about your store's products, orders, customers and collections, " +
	"and give you quick sales overviews. Try asking something like \"show my 5 latest unfulfilled orders\" " +
	"or \"which products are out of stock?\""

const unknownReply = "I'm not sure what store data you're asking about. I can help with products, orders, " +
	"customers, collections and sales summaries. Could you rephrase your question?"

// NewCannedResponseNode answers help/unknown intents without any model call
// and persists the reply so the conversation stays coherent.
func NewCannedResponseNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		var conversationID string
		var in intent.Intent
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			in = state.Intent.Intent
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		reply := unknownReply
		if in == intent.IntentHelp {
			reply = helpReply
		}

		if err := mm.SaveResponse(ctx, conversationID, reply); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to save canned response")
		}
		return schema.AssistantMessage(reply, nil), nil
	})
}

// recordUsageCost attaches token usage cost to the message Extra and
// accumulates the running total on state.
func recordUsageCost(out *schema.Message, state *model.AppState, nodeName, modelName string) {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("conversation_id", state.ConversationID).
		Str("node", nodeName).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
}

// NewPlannerChatModelPostHandler computes and logs usage cost for the planner.
func NewPlannerChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		recordUsageCost(out, state, NodePlannerChatModel, modelName)
		return out, nil
	}
}

// NewPlanParserNode parses the planner output into a QueryPlan. Any parse or
// validation failure falls back to the intent template, so the executor
// always receives a runnable plan.
func NewPlanParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.QueryPlan, error) {
		var res intent.Result
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			res = state.Intent
			return nil
		}); err != nil {
			return model.QueryPlan{}, fmt.Errorf("failed to read intent: %w", err)
		}

		plan := buildPlan(resp.Content, res)
		return plan, nil
	})
}

func buildPlan(content string, res intent.Result) model.QueryPlan {
	parsed, err := parsers.ParsePlan(content)
	if err == nil && parsed != nil && parsed.GraphQL != "" {
		if verr := queries.Validate(parsed.GraphQL); verr == nil {
			vars := parsed.Variables
			if vars == nil {
				vars = queries.Variables(res)
			}
			return model.QueryPlan{
				Intent:    res,
				GraphQL:   parsed.GraphQL,
				Variables: vars,
				Source:    model.PlanSourceModel,
				Note:      parsed.Note,
			}
		} else {
			logx.Warn().Err(verr).Str("intent", res.Intent.String()).Msg("generated query rejected, using template")
		}
	} else if err != nil {
		logx.Warn().Err(err).Msg("plan parsing failed, using template")
	} else if parsed != nil && len(parsed.Errors) > 0 {
		logx.Debug().Strs("parse_errors", parsed.Errors).Msg("plan parsed with errors, using template")
	}

	query, vars, _ := queries.Fallback(res)
	return model.QueryPlan{
		Intent:    res,
		GraphQL:   query,
		Variables: vars,
		Source:    model.PlanSourceTemplate,
	}
}

// NewPlanParserPostHandler stores the plan on state for downstream nodes.
func NewPlanParserPostHandler() func(context.Context, model.QueryPlan, *model.AppState) (model.QueryPlan, error) {
	return func(ctx context.Context, out model.QueryPlan, state *model.AppState) (model.QueryPlan, error) {
		state.Plan = &out
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Str("intent", out.Intent.Intent.String()).
			Str("plan_source", string(out.Source)).
			Msg("query plan ready")
		return out, nil
	}
}

// NewQueryExecutorNode runs the plan against the Admin API, consulting the
// result cache first. Payloads are compacted before caching.
func NewQueryExecutorNode(client *shopify.Client, results *cache.ResultCache, resultTTL time.Duration) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan model.QueryPlan) (model.QueryResult, error) {
		creds, ok := shopify.CredentialsFrom(ctx)
		if !ok {
			return model.QueryResult{}, fmt.Errorf("no shop credentials in context")
		}

		varsJSON, err := json.Marshal(plan.Variables)
		if err != nil {
			return model.QueryResult{}, fmt.Errorf("marshal plan variables: %w", err)
		}
		key := cache.Key(creds.ShopDomain, plan.GraphQL, string(varsJSON))

		if payload, hit := results.Get(key); hit {
			logx.Debug().Str("shop", creds.ShopDomain).Msg("query result served from cache")
			return publishResult(ctx, model.QueryResult{Plan: plan, Payload: payload, FromCache: true}), nil
		}

		payload, cost, err := client.Query(ctx, creds, plan.GraphQL, plan.Variables)
		if err != nil {
			return model.QueryResult{}, err
		}
		if cost != nil {
			logx.Debug().
				Str("shop", creds.ShopDomain).
				Float64("query_cost", cost.ActualQueryCost).
				Float64("available", cost.ThrottleStatus.CurrentlyAvailable).
				Msg("admin api query executed")
		}

		compacted := compactJSON(payload)
		results.Set(key, compacted, resultTTL)
		return publishResult(ctx, model.QueryResult{Plan: plan, Payload: compacted}), nil
	})
}

// publishResult mirrors an executed result into the invocation's capture so
// the runner can still ground a degraded reply in it if a later stage fails.
func publishResult(ctx context.Context, res model.QueryResult) model.QueryResult {
	if capture, ok := model.ResultCaptureFrom(ctx); ok {
		capture.Store(res)
	}
	return res
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// NewSummaryAssemblerNode builds the summary model context: the grounded
// system prompt plus conversation history.
func NewSummaryAssemblerNode(
	mm *conversations.MessagesManager,
	summaryPromptConfig *model.SummaryPromptConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result model.QueryResult) ([]*schema.Message, error) {
		var conversationID string
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		sysPrompt, err := prompts.RenderSummarySystem(ctx, *summaryPromptConfig, result)
		if err != nil {
			return nil, fmt.Errorf("generate summary prompt: %w", err)
		}

		messages, err := mm.BuildSummaryContext(ctx, conversationID, sysPrompt)
		if err != nil {
			return nil, fmt.Errorf("build summary context: %w", err)
		}

		return messages, nil
	})
}

// NewSummaryChatModelPreHandler creates the pre-handler for the summary model.
func NewSummaryChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Heuristic fix for Gemini OpenAI-compat: ensure tool results carry tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					id := msg.ToolCalls[0].ID
					if strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return state.History, nil
	}
}

// NewSummaryChatModelPostHandler creates the post-handler for the summary
// model: cost accounting, tool-call id normalization and reply persistence.
func NewSummaryChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		recordUsageCost(out, state, NodeSummaryChatModel, modelName)
		if out != nil {
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["intent"] = state.Intent.Intent.String()
		}

		// Some providers omit tool_call IDs; synthesize them so the tool
		// results can be matched back.
		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("calling tools")
		}

		// Save only a final assistant message (no pending tool calls), or a
		// content response produced after hitting the tool-call limit.
		if out.Role == schema.Assistant && (len(out.ToolCalls) == 0 || state.ToolCallLimitReached) && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("error saving assistant response")
			}
		}

		return out, nil
	}
}

// NewFinalMessagePostHandler annotates a terminal message with the classified
// intent and accumulated cost so the runner can report them.
func NewFinalMessagePostHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return out, nil
		}
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra["intent"] = state.Intent.Intent.String()
		out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		return out, nil
	}
}

// NewToolExecutorCondition creates the condition function for tool execution routing.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("tool limit reached previously, routing to end")
			return compose.END, nil
		}

		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}

		return compose.END, nil
	}
}

// NewToolExecutorPreHandler creates the pre-handler for the ToolExecutor node.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("conversation_id", state.ConversationID).
			Msg("tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("conversation_id", state.ConversationID).
				Msg("tool call limit exceeded, flagging and continuing")
		}

		return in, nil
	}
}
