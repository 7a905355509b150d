package anthropic

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"
