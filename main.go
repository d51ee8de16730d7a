package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/storewise-ai/server/internal/assistant"
	"github.com/storewise-ai/server/internal/assistant/graph"
	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/assistant/repo"
	"github.com/storewise-ai/server/internal/billing"
	"github.com/storewise-ai/server/internal/cache"
	"github.com/storewise-ai/server/internal/core"
	"github.com/storewise-ai/server/internal/httpapi"
	"github.com/storewise-ai/server/internal/ratelimit"
	"github.com/storewise-ai/server/internal/shopify"
	"github.com/storewise-ai/server/internal/store"
	logx "github.com/storewise-ai/server/pkg/logger"
	pkgpostgres "github.com/storewise-ai/server/pkg/postgres"
	pkgredis "github.com/storewise-ai/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the server, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config
	HTTP     httpapi.Config

	// Shopify app
	Shopify   shopify.Config
	AppSecret string `envconfig:"SHOPIFY_APP_SECRET" required:"true"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Assistant configs
	Planner       model.PlannerModelConfig
	Summary       model.SummaryModelConfig
	SummaryPrompt model.SummaryPromptConfig
	Conversation  model.ConversationConfig
	Cache         model.CacheConfig
	RateLimit     ratelimit.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env"); err != nil {
		logx.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	pool, err := cfg.Postgres.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	db := store.New(pool)
	if err := db.Migrate(ctx); err != nil {
		logx.Fatal().Err(err).Msg("failed to run migrations")
	}

	shopifyClient := shopify.NewClient(cfg.Shopify)

	resultTTL, err := time.ParseDuration(cfg.Cache.ResultTTL)
	if err != nil {
		logx.Fatal().Err(err).Str("value", cfg.Cache.ResultTTL).Msg("invalid QUERY_CACHE_TTL")
	}
	results := cache.New(resultTTL)
	defer results.Close()

	conversationTTL, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("value", cfg.Conversation.TTL).Msg("invalid CONVERSATION_TTL")
	}
	convos := repo.NewRedisConversationRepository(rdb, conversationTTL)

	runner, err := graph.BuildChatGraph(ctx, graph.Config{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		PlannerModel:     cfg.Planner,
		SummaryModel:     cfg.Summary,
		SummaryPrompt:    cfg.SummaryPrompt,
		Conversation:     cfg.Conversation,
		ConversationRepo: convos,
		ShopifyClient:    shopifyClient,
		ResultCache:      results,
		ResultTTL:        resultTTL,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build chat graph")
	}

	meter := billing.NewMeter(db)
	service := assistant.NewService(runner, meter, db, convos)

	limiter, err := ratelimit.New(rdb, cfg.RateLimit)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build rate limiter")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers:  httpapi.NewHandlers(service, meter, db),
		Webhooks:  httpapi.NewWebhooks(cfg.AppSecret, db, results),
		Limiter:   limiter,
		AppSecret: cfg.AppSecret,
		DB:        db,
		Redis:     httpapi.NewRedisPinger(rdb),
	})

	server := httpapi.NewServer(cfg.HTTP, router)
	if err := server.Run(ctx); err != nil {
		logx.Fatal().Err(err).Msg("server exited with error")
	}
	logx.Info().Msg("server stopped")
}
