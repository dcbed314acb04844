package openai

import (
	"github.com/effective-security/mcpbridge/pkg/llms/openai/internal/openaiclient"
)

// Option configures the client of the Chat Completions API
type Option func(*openaiclient.Config)

// WithToken sets the API key, it is required.
func WithToken(token string) Option {
	return func(cfg *openaiclient.Config) { cfg.Token = token }
}

// WithModel sets the default model of the calls.
func WithModel(model string) Option {
	return func(cfg *openaiclient.Config) { cfg.Model = model }
}

// WithBaseURL sets the API endpoint, https://api.openai.com/v1 by default.
// Any OpenAI compatible endpoint can be used.
func WithBaseURL(baseURL string) Option {
	return func(cfg *openaiclient.Config) { cfg.BaseURL = baseURL }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(organization string) Option {
	return func(cfg *openaiclient.Config) { cfg.Organization = organization }
}

// WithHTTPClient sets the client of the requests, http.DefaultClient by default.
func WithHTTPClient(client openaiclient.Doer) Option {
	return func(cfg *openaiclient.Config) { cfg.HTTPClient = client }
}
