package assistants

import (
	"maps"
	"slices"
	"time"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/store"
)

// Limits of a single assistant run
const (
	DefaultMaxToolCalls   = 10
	DefaultMaxMessages    = 100
	DefaultMaxContentSize = 1024 * 1024
	DefaultMaxRetries     = 3
	DefaultMaxNotFound    = 3
	DefaultTimeout        = 2 * time.Minute
)

// Option is a function that can be used to modify the behavior of the Assistant Config.
type Option func(*Config)

// Config of the assistant run.
// Zero values of the limits mean the defaults.
type Config struct {
	// callOptions are passed to every LLM call of the run
	callOptions []llms.CallOption

	// CallbackHandler receives the events of the run
	CallbackHandler Callback

	// PromptInput are the default values for the system prompt template
	PromptInput map[string]any
	// Examples are added after the system prompt
	Examples chatmodel.FewShotExamples

	// Store keeps the conversation history of the chat
	Store store.MessageStore
	// SkipMessageHistory disables adding the run messages to Store
	SkipMessageHistory bool
	// SkipToolHistory disables adding the tool calls to Store
	SkipToolHistory bool

	// MaxToolCalls is the limit of tool calls in a run
	MaxToolCalls int
	// MaxMessages is the limit of messages sent to the model
	MaxMessages int
	// MaxLength is the limit of bytes sent to the model
	MaxLength int
	// Timeout of the run
	Timeout time.Duration
}

// NewConfig returns the config with the options applied
func NewConfig(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with the options applied
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	cfg.callOptions = slices.Clone(c.callOptions)
	cfg.PromptInput = maps.Clone(c.PromptInput)
	cfg.Examples = slices.Clone(c.Examples)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithExamples is an option that allows to specify the few-shot examples for the system prompt.
func WithExamples(examples chatmodel.FewShotExamples) Option {
	return func(o *Config) {
		o.Examples = examples
	}
}

// WithStore sets the store of the conversation history.
func WithStore(st store.MessageStore) Option {
	return func(o *Config) {
		o.Store = st
	}
}

// WithSkipMessageHistory is an option that allows to skip adding Assistant messages to History.
func WithSkipMessageHistory(skip bool) Option {
	return func(o *Config) {
		o.SkipMessageHistory = skip
	}
}

// WithSkipToolHistory is an option that allows to skip adding tool calls to History.
func WithSkipToolHistory(skip bool) Option {
	return func(o *Config) {
		o.SkipToolHistory = skip
	}
}

// WithPromptInput is an option that allows the user to specify the system prompt input.
func WithPromptInput(input map[string]any) Option {
	return func(o *Config) {
		o.PromptInput = input
	}
}

// WithMaxToolCalls limits the number of tool calls in a run.
func WithMaxToolCalls(n int) Option {
	return func(o *Config) {
		o.MaxToolCalls = n
	}
}

// WithMaxMessages limits the number of messages sent to the model.
func WithMaxMessages(n int) Option {
	return func(o *Config) {
		o.MaxMessages = n
	}
}

// WithMaxLength limits the size of the content sent to the model.
func WithMaxLength(n int) Option {
	return func(o *Config) {
		o.MaxLength = n
	}
}

// WithTimeout sets the timeout of the run.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Config) {
		o.Timeout = timeout
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

func withCallOption(opt llms.CallOption) Option {
	return func(o *Config) {
		o.callOptions = append(o.callOptions, opt)
	}
}

// WithModel overrides the model of the LLM call.
func WithModel(model string) Option {
	return withCallOption(llms.WithModel(model))
}

// WithMaxTokens limits the tokens generated by the LLM call.
func WithMaxTokens(maxTokens int) Option {
	return withCallOption(llms.WithMaxTokens(maxTokens))
}

// WithTemperature sets the sampling temperature of the LLM call.
func WithTemperature(temperature float64) Option {
	return withCallOption(llms.WithTemperature(temperature))
}

// WithTopP sets the top-p sampling of the LLM call.
func WithTopP(topP float64) Option {
	return withCallOption(llms.WithTopP(topP))
}

// WithStopWords sets the stop words of the LLM call.
func WithStopWords(stopWords []string) Option {
	return withCallOption(llms.WithStopWords(slices.Clone(stopWords)))
}

// WithToolChoice is one of "none", "auto" or "required".
func WithToolChoice(choice string) Option {
	return withCallOption(llms.WithToolChoice(choice))
}

// WithMetadata is passed to the provider, when supported.
func WithMetadata(metadata map[string]any) Option {
	return withCallOption(llms.WithMetadata(maps.Clone(metadata)))
}

// GetCallOptions returns the options of the LLM call, followed by extra
func (c *Config) GetCallOptions(extra ...llms.CallOption) []llms.CallOption {
	return append(slices.Clone(c.callOptions), extra...)
}
