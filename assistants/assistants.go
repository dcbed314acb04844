package assistants

import (
	"context"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "assistants")

// IAssistant is the agent that answers the prompts
type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Description returns the description of the Assistant, to be used in the prompt of other Assistants or LLMs.
	// Should not exceed LLM model limit.
	Description() string
	// Run executes the assistant with the input
	Run(ctx context.Context, input *CallInput) (*Result, error)
}

// CallInput is the input of the assistant run
type CallInput struct {
	// Input is the user message, can be empty if Messages are provided
	Input string
	// PromptInputs are the values for the system prompt template
	PromptInputs map[string]any
	// Messages are added after the user message
	Messages []llms.Message
	// Options of the run
	Options []Option
}

// Result of the assistant run
type Result struct {
	// Content is the final answer of the model
	Content string
	// Response is the last response of the model
	Response *llms.ContentResponse
	// Messages are all the messages of the run,
	// including the system prompt and the tool calls
	Messages []llms.Message
	// ToolCalls is the number of the tool calls made in the run
	ToolCalls int
}

// Callback receives the events of the assistant run
type Callback interface {
	tools.Callback
	OnAssistantStart(ctx context.Context, a IAssistant, input string)
	OnAssistantEnd(ctx context.Context, a IAssistant, input string, res *Result)
	OnAssistantError(ctx context.Context, a IAssistant, input string, err error, messages []llms.Message)
	OnAssistantLLMCallStart(ctx context.Context, a IAssistant, llm llms.Model, payload []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, a IAssistant, llm llms.Model, resp *llms.ContentResponse)
	OnToolNotFound(ctx context.Context, a IAssistant, tool string)
}
