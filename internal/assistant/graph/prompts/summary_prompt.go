package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/assistant/tools"
)

//go:embed template/summary_prompt.txt
var summarySystemPrompt string

// maxPayloadChars caps how much Admin API JSON goes into the system prompt.
const maxPayloadChars = 24 * 1024

// RenderSummarySystem renders the dynamic summary system prompt, grounding
// the model in the executed query payload, and triggers prompt callbacks.
func RenderSummarySystem(ctx context.Context, cfg model.SummaryPromptConfig, result model.QueryResult) (string, error) {
	payload := string(result.Payload)
	if len(payload) > maxPayloadChars {
		payload = payload[:maxPayloadChars]
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(summarySystemPrompt),
	)
	vars := map[string]any{
		"AssistantName": cfg.AssistantName,
		"Tone":          cfg.Tone,
		"Intent":        result.Plan.Intent.Intent.String(),
		"DataJSON":      payload,
		"SearchTool":    tools.ToolSearchProducts,
		"OrderTool":     tools.ToolGetOrderDetails,
		"CustomerTool":  tools.ToolGetCustomer,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("summary prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("summary prompt render: empty result")
	}
	return msgs[0].Content, nil
}
