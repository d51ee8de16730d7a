package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/storewise-ai/server/internal/assistant/graph/conversations"
	"github.com/storewise-ai/server/internal/assistant/graph/nodes"
	"github.com/storewise-ai/server/internal/assistant/graph/observers"
	"github.com/storewise-ai/server/internal/assistant/intent"
	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/assistant/tools"
	"github.com/storewise-ai/server/internal/cache"
	errx "github.com/storewise-ai/server/internal/core/error"
	"github.com/storewise-ai/server/internal/shopify"
	logx "github.com/storewise-ai/server/pkg/logger"
)

// Runner executes the compiled graph for one merchant message.
type Runner interface {
	Invoke(ctx context.Context, in model.ChatInput) (model.ChatResult, error)
}

// Config holds everything needed to compose the full chat graph end-to-end.
type Config struct {
	APIKey           string
	BaseURL          string
	PlannerModel     model.PlannerModelConfig
	SummaryModel     model.SummaryModelConfig
	SummaryPrompt    model.SummaryPromptConfig
	Conversation     model.ConversationConfig
	ConversationRepo model.ConversationRepository
	ShopifyClient    *shopify.Client
	ResultCache      *cache.ResultCache
	ResultTTL        time.Duration
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	ChatModels          *nodes.ChatModels
	MessagesManager     *conversations.MessagesManager
	SummaryPromptConfig *model.SummaryPromptConfig
	Toolset             *tools.Toolset
	ToolMaxCalls        int
	ShopifyClient       *shopify.Client
	ResultCache         *cache.ResultCache
	ResultTTL           time.Duration
}

// GraphBuilder handles the construction of the chat graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.ChatInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.ChatInput, *schema.Message]
	mm       *conversations.MessagesManager
}

func (r *graphRunner) Invoke(ctx context.Context, in model.ChatInput) (model.ChatResult, error) {
	capture := &model.ResultCapture{}
	ctx = model.WithResultCapture(ctx, capture)

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return r.fallback(ctx, in, capture, err)
	}
	if out == nil {
		return r.fallback(ctx, in, capture, fmt.Errorf("graph returned nil message"))
	}

	result := model.ChatResult{
		ConversationID: in.ConversationID,
		Reply:          out.Content,
		Intent:         intent.IntentUnknown,
	}
	if v, ok := out.Extra["intent"].(string); ok {
		result.Intent = intent.Intent(v)
	}
	if v, ok := out.Extra["usage_cost_total_usd"].(float64); ok {
		result.CostUSD = v
	}
	return result, nil
}

// fallback degrades model or Admin API failures into a safe templated reply.
// When the query already executed, the reply is grounded in the fetched
// payload (row counts plus intent phrasing) instead of claiming the fetch
// failed. Credential problems are the one class that must reach the merchant
// as an error, since retrying cannot help.
func (r *graphRunner) fallback(ctx context.Context, in model.ChatInput, capture *model.ResultCapture, cause error) (model.ChatResult, error) {
	var ae *errx.AppError
	if errors.As(cause, &ae) && ae.Status == http.StatusUnauthorized {
		return model.ChatResult{}, cause
	}

	var reply string
	replyIntent := intent.IntentUnknown

	if res, ok := capture.Load(); ok {
		reply = dataFallbackReply(res)
		replyIntent = res.Plan.Intent.Intent
	} else {
		replyIntent = intent.Classify(in.Query).Intent
		reply = fallbackReply(replyIntent)
	}

	logx.Error().
		Err(cause).
		Str("conversation_id", in.ConversationID).
		Str("shop", in.ShopDomain).
		Str("intent", replyIntent.String()).
		Msg("chat pipeline failed, using fallback reply")

	if err := r.mm.SaveResponse(ctx, in.ConversationID, reply); err != nil {
		logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to save fallback reply")
	}

	return model.ChatResult{
		ConversationID: in.ConversationID,
		Reply:          reply,
		Intent:         replyIntent,
	}, nil
}

func fallbackReply(in intent.Intent) string {
	return fmt.Sprintf("I couldn't fetch your %s data just now. Please try again in a moment.", fallbackTopic(in))
}

// dataFallbackReply renders a reply straight from an executed payload when
// the summary stage is unavailable.
func dataFallbackReply(res model.QueryResult) string {
	topic := fallbackTopic(res.Plan.Intent.Intent)
	count, counted := payloadRowCount(res.Payload)
	switch {
	case !counted:
		return fmt.Sprintf("I fetched your %s data but couldn't put together a summary just now. Please try again in a moment.", topic)
	case count == 0:
		return fmt.Sprintf("Your %s lookup returned no matching records.", topic)
	case count == 1:
		return fmt.Sprintf("I found 1 matching %s record, but couldn't write up a summary just now. Please try again in a moment for details.", topic)
	default:
		return fmt.Sprintf("I found %d matching %s records, but couldn't write up a summary just now. Please try again in a moment for details.", count, topic)
	}
}

func fallbackTopic(in intent.Intent) string {
	if in.Queryable() {
		return in.String()
	}
	return "store"
}

// payloadRowCount sums the edges of every top-level connection in the data
// payload. counted is false when no connection shape was found.
func payloadRowCount(payload json.RawMessage) (count int, counted bool) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return 0, false
	}
	for _, raw := range root {
		var conn struct {
			Edges []json.RawMessage `json:"edges"`
		}
		if err := json.Unmarshal(raw, &conn); err != nil {
			continue
		}
		if conn.Edges != nil {
			counted = true
			count += len(conn.Edges)
		}
	}
	return count, counted
}

// BuildChatGraph composes chat models, messages manager and toolset, builds
// the graph, and returns a Runner.
func BuildChatGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.ShopifyClient == nil {
		return nil, fmt.Errorf("shopify client is nil")
	}
	if cfg.ResultCache == nil {
		return nil, fmt.Errorf("result cache is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		PlannerConfig: &cfg.PlannerModel,
		SummaryConfig: &cfg.SummaryModel,
	})
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:          cms,
		MessagesManager:     mm,
		SummaryPromptConfig: &cfg.SummaryPrompt,
		Toolset:             tools.NewToolset(cfg.ShopifyClient),
		ToolMaxCalls:        cfg.Conversation.Tools.MaxCalls,
		ShopifyClient:       cfg.ShopifyClient,
		ResultCache:         cfg.ResultCache,
		ResultTTL:           cfg.ResultTTL,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("chat graph built successfully")
	return &graphRunner{runnable: runnable, mm: mm}, nil
}

// BuildGraph constructs and returns the compiled chat graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.ChatInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Planner == nil || config.ChatModels.Summary == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.SummaryPromptConfig == nil {
		return nil, fmt.Errorf("summary prompt config is nil")
	}
	if config.Toolset == nil {
		return nil, fmt.Errorf("toolset is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.ChatInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the follow-up tools to the summary model and registers the
// tool executor node.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	businessTools := b.config.Toolset.All()
	toolInfos, err := tools.GetToolInfos(ctx, businessTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToSummaryModel(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to summary model")
		return fmt.Errorf("failed to bind tools to summary model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               businessTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("unknown or invalid tool call, returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: sanitizeToolArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)

	return nil
}

// sanitizeToolArguments best-effort normalizes model-produced arguments;
// it never fails hard.
func sanitizeToolArguments(ctx context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		// keep original if not JSON
		return arguments, nil
	}

	trimString := func(key string) {
		if v, ok := m[key]; ok {
			switch vv := v.(type) {
			case string:
				m[key] = strings.TrimSpace(vv)
			default:
				m[key] = strings.TrimSpace(fmt.Sprint(v))
			}
		}
	}

	switch name {
	case tools.ToolSearchProducts:
		trimString("query")
		if v, ok := m["max_results"]; ok {
			switch vv := v.(type) {
			case float64:
				// JSON numbers decode as float64
				m["max_results"] = clampInt(int(vv), 1, 20)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
					m["max_results"] = clampInt(n, 1, 20)
				} else {
					delete(m, "max_results")
				}
			default:
				delete(m, "max_results")
			}
		}
	case tools.ToolGetOrderDetails:
		trimString("order_name")
	case tools.ToolGetCustomer:
		trimString("search")
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.MessagesManager),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeCannedResponse,
		nodes.NewCannedResponseNode(b.config.MessagesManager),
		compose.WithStatePostHandler(nodes.NewFinalMessagePostHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodePlannerChatModel,
		b.config.ChatModels.Planner,
		compose.WithStatePostHandler(nodes.NewPlannerChatModelPostHandler(b.config.ChatModels.PlannerModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodePlanParser,
		nodes.NewPlanParserNode(),
		compose.WithStatePostHandler(nodes.NewPlanParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeQueryExecutor,
		nodes.NewQueryExecutorNode(b.config.ShopifyClient, b.config.ResultCache, b.config.ResultTTL),
	)

	b.graph.AddLambdaNode(nodes.NodeSummaryAssembler,
		nodes.NewSummaryAssemblerNode(b.config.MessagesManager, b.config.SummaryPromptConfig),
	)

	b.graph.AddChatModelNode(nodes.NodeSummaryChatModel,
		b.config.ChatModels.Summary,
		compose.WithStatePreHandler(nodes.NewSummaryChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewSummaryChatModelPostHandler(b.config.MessagesManager, b.config.ChatModels.SummaryModelName)),
	)
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodePlannerChatModel, nodes.NodePlanParser},
		{nodes.NodePlanParser, nodes.NodeQueryExecutor},
		{nodes.NodeQueryExecutor, nodes.NodeSummaryAssembler},
		{nodes.NodeSummaryAssembler, nodes.NodeSummaryChatModel},
		{nodes.NodeCannedResponse, compose.END},
		{nodes.NodeToolExecutor, nodes.NodeSummaryChatModel},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	cannedBranch := compose.NewGraphBranch(
		nodes.NewCannedResponseCondition(),
		map[string]bool{
			nodes.NodePlannerChatModel: true,
			nodes.NodeCannedResponse:   true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeInputConverter, cannedBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding canned response branch")
		return fmt.Errorf("error adding canned response branch: %w", err)
	}

	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSummaryChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.ChatInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("graph compiled successfully")
	return runnable, nil
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
