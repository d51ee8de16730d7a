package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates the prompt, tool and model observer handlers
// into one callbacks.Handler for graph invocation.
func NewAllCallbacks() einocb.Handler {
	toolHandler := newToolHandler()
	promptHandler := newPromptHandler()
	modelHandler := newModelHandler()

	return callbackHelper.NewHandlerHelper().
		Tool(toolHandler).
		ChatModel(modelHandler).
		Prompt(promptHandler).
		Handler()
}
