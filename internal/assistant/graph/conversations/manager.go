package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/storewise-ai/server/internal/assistant/model"
)

// MessagesManager owns conversation persistence around the graph: it records
// the merchant message, assembles planner and summary contexts from history,
// and saves the final assistant reply.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	plannerMaxTurns  int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		plannerMaxTurns:  config.Planner.MaxTurns,
	}
}

// RecordMerchantMessage persists the incoming message and returns the tagged
// text block the planner prompt consumes.
func (cm *MessagesManager) RecordMerchantMessage(ctx context.Context, conversationID string, query string) (string, error) {
	userMsg := schema.UserMessage(query)
	if err := cm.conversationRepo.AddMessage(ctx, conversationID, userMsg); err != nil {
		return "", err
	}

	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	full.WriteString(cm.buildPlannerContext(history.Messages))
	full.WriteString("\n<current_message>\n")
	full.WriteString("UserMessage(" + query + ")\n")
	full.WriteString("</current_message>")

	return full.String(), nil
}

func (cm *MessagesManager) buildPlannerContext(messages []*schema.Message) string {
	recent := trimTail(messages, cm.plannerMaxTurns)

	var b strings.Builder
	b.WriteString("<conversation_context>\n")

	for _, msg := range recent {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}

	b.WriteString("</conversation_context>")
	return b.String()
}

// BuildSummaryContext assembles the summary model input: system prompt first,
// then the stored conversation history.
func (cm *MessagesManager) BuildSummaryContext(ctx context.Context, conversationID string, systemPrompt string) ([]*schema.Message, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}
	messages = append(messages, history.Messages...)

	return messages, nil
}

// SaveResponse persists the final assistant reply.
func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	assistantMsg := schema.AssistantMessage(content, nil)
	return cm.conversationRepo.AddMessage(ctx, conversationID, assistantMsg)
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
