package openai

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"
