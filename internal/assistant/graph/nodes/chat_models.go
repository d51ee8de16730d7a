package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"github.com/storewise-ai/server/internal/assistant/model"
	logx "github.com/storewise-ai/server/pkg/logger"
	"google.golang.org/genai"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey        string
	BaseURL       string
	PlannerConfig *model.PlannerModelConfig
	SummaryConfig *model.SummaryModelConfig
}

// ChatModels holds the planner and summary chat models.
type ChatModels struct {
	Planner          *gemini.ChatModel
	Summary          *gemini.ChatModel
	PlannerModelName string
	SummaryModelName string
}

// NewChatModels creates the planner and summary chat models with the given
// configuration.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	planner, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.PlannerConfig.Model,
		Temperature: &config.PlannerConfig.Temperature,
		MaxTokens:   &config.PlannerConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating planner model")
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}

	summary, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.SummaryConfig.Model,
		Temperature: &config.SummaryConfig.Temperature,
		MaxTokens:   &config.SummaryConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating summary model")
		return nil, fmt.Errorf("error creating summary model: %w", err)
	}

	return &ChatModels{
		Planner:          planner,
		Summary:          summary,
		PlannerModelName: config.PlannerConfig.Model,
		SummaryModelName: config.SummaryConfig.Model,
	}, nil
}

// BindToolsToSummaryModel binds the follow-up tools to the summary chat model.
func (cm *ChatModels) BindToolsToSummaryModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Summary.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Msg("Successfully bound tools to summary model")
	return nil
}
