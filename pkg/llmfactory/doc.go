// Package llmfactory creates the configured LLM models
// of the OpenAI, Anthropic and Bedrock providers, and selects them by type or name.
package llmfactory
