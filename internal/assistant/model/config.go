package model

// ================ Config ================
type ConversationConfig struct {
	TTL     string `envconfig:"CONVERSATION_TTL" default:"24h"`
	Planner struct {
		MaxTurns int `envconfig:"CONVERSATION_PLANNER_MAX_TURNS" default:"6"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"6"`
	}
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.1"`
}

type SummaryModelConfig struct {
	Model       string  `envconfig:"SUMMARY_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"SUMMARY_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"SUMMARY_TEMPERATURE" default:"0.4"`
}

type SummaryPromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Storewise"`
	Tone          string `envconfig:"PROMPT_TONE" default:"concise and friendly"`
}

type CacheConfig struct {
	ResultTTL string `envconfig:"QUERY_CACHE_TTL" default:"60s"`
}
