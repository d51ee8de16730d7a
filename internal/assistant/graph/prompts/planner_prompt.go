package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/storewise-ai/server/internal/assistant/intent"
	"github.com/storewise-ai/server/internal/assistant/queries"
)

//go:embed template/planner_prompt.txt
var plannerSystemPrompt string

// RenderPlannerSystem renders the planner system prompt via the Eino prompt
// component. The intent's fallback template is embedded so the model can
// adopt it verbatim when it has nothing better.
func RenderPlannerSystem(ctx context.Context, res intent.Result) (string, error) {
	fallbackQuery, fallbackVars, ok := queries.Fallback(res)
	if !ok {
		return "", fmt.Errorf("intent %q has no query template", res.Intent)
	}

	entitiesJSON, err := json.Marshal(res.Entities)
	if err != nil {
		return "", fmt.Errorf("marshal entities: %w", err)
	}
	varsJSON, err := json.Marshal(fallbackVars)
	if err != nil {
		return "", fmt.Errorf("marshal fallback variables: %w", err)
	}

	// Replace known tokens only so GraphQL braces in the template survive.
	content := strings.NewReplacer(
		"{TD}", "<||>",
		"{RD}", "##",
		"{CD}", "<|COMPLETE|>",
		"{intent}", res.Intent.String(),
		"{entities}", string(entitiesJSON),
		"{fallback_query}", fallbackQuery,
		"{fallback_variables}", string(varsJSON),
	).Replace(plannerSystemPrompt)

	// Wrap via the Eino prompt component using a messages placeholder so
	// prompt callbacks fire.
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("planner prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("planner prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
