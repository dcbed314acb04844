package assistants

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Assistant runs the model with the tools.
// Assistant is safe for concurrent use, each run has its own message history.
type Assistant struct {
	LLM llms.Model

	name        string
	description string
	sysprompt   prompts.FormatPrompter
	cfg         *Config

	tools       []tools.ITool
	toolsByName map[string]tools.ITool
	toolsNames  []string
	llmToolDefs []llms.Tool
}

var _ IAssistant = (*Assistant)(nil)

// Name returns the name of the Agent.
func (a *Assistant) Name() string {
	return a.name
}

// Description returns the description of the Agent.
func (a *Assistant) Description() string {
	return a.description
}

// GetTools returns the tools of the Agent
func (a *Assistant) GetTools() []tools.ITool {
	return a.tools
}

// GetPromptInputVariables returns the input variables of the system prompt
func (a *Assistant) GetPromptInputVariables() []string {
	return a.sysprompt.GetInputVariables()
}

// GetSystemPrompt returns the system prompt formatted with the inputs
func (a *Assistant) GetSystemPrompt(cfg *Config, promptInputs map[string]any) (string, error) {
	inputs := llmutils.MergeInputs(map[string]any{"tools": tools.GetDescriptions(a.tools...)}, cfg.PromptInput)
	promptValue, err := a.sysprompt.FormatPrompt(llmutils.MergeInputs(inputs, promptInputs))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(promptValue.String(), "\n"), nil
}

// Prompt runs the assistant with the user text and returns the final answer
func (a *Assistant) Prompt(ctx context.Context, text string, opts ...Option) (string, error) {
	res, err := a.Run(ctx, &CallInput{
		Input:   text,
		Options: opts,
	})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Run executes the assistant with the input
func (a *Assistant) Run(ctx context.Context, input *CallInput) (*Result, error) {
	started := time.Now()
	defer metricskey.PerfAssistantCall.MeasureSince(started, a.name)

	cfg := a.cfg.Apply(input.Options...)

	ctx = chatmodel.EnsureChatContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(values.NumbersCoalesce(int64(cfg.Timeout), int64(DefaultTimeout))))
	defer cancel()

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnAssistantStart(ctx, a, input.Input)
	}

	res, messages, err := a.run(ctx, cfg, input)
	if err != nil {
		metricskey.StatsAssistantCallsFailed.IncrCounter(1, a.name)
		logger.ContextKV(ctx, xlog.ERROR,
			"assistant", a.name,
			"input", slices.StringUpto(input.Input, 64),
			"err", err.Error(),
		)
		if callback != nil {
			callback.OnAssistantError(ctx, a, input.Input, err, messages)
		}
		return nil, err
	}
	metricskey.StatsAssistantCallsSucceeded.IncrCounter(1, a.name)
	if callback != nil {
		callback.OnAssistantEnd(ctx, a, input.Input, res)
	}
	return res, nil
}

// run is the model loop, it returns the messages sent to the model on error
func (a *Assistant) run(ctx context.Context, cfg *Config, input *CallInput) (*Result, []llms.Message, error) {
	_, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, nil, err
	}

	systemPrompt, err := a.GetSystemPrompt(cfg, input.PromptInputs)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to format system prompt")
	}

	messageHistory := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, systemPrompt),
	}
	for _, example := range cfg.Examples {
		messageHistory = append(messageHistory,
			llms.MessageFromTextParts(llms.RoleHuman, example.Prompt),
			llms.MessageFromTextParts(llms.RoleAI, example.Completion),
		)
	}
	if cfg.Store != nil {
		prevMessages := cfg.Store.Messages(ctx)
		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.name,
			"chat_id", chatID,
			"message_history", len(prevMessages))
		messageHistory = append(messageHistory, prevMessages...)
	}

	// runMessages are added to the store at the end of the run
	var runMessages []llms.Message
	if input.Input != "" {
		userMessage := llms.MessageFromTextParts(llms.RoleHuman, input.Input)
		messageHistory = append(messageHistory, userMessage)
		runMessages = append(runMessages, userMessage)
	}
	messageHistory = append(messageHistory, input.Messages...)

	var callOpts []llms.CallOption
	if len(a.llmToolDefs) > 0 {
		callOpts = cfg.GetCallOptions(llms.WithTools(a.llmToolDefs))
	} else {
		callOpts = cfg.GetCallOptions()
	}

	modelName := a.LLM.GetName()

	var resp *llms.ContentResponse
	var totalToolExecuted int
	var retryCount int
	var consecutiveNotFound int

	messagesLimit := values.NumbersCoalesce(cfg.MaxMessages, DefaultMaxMessages)
	bytesLimit := uint64(values.NumbersCoalesce(cfg.MaxLength, DefaultMaxContentSize))
	toolsLimit := values.NumbersCoalesce(cfg.MaxToolCalls, DefaultMaxToolCalls)
	for {
		if len(messageHistory) > messagesLimit {
			return nil, messageHistory, errors.Newf("assistant %s: the messages count exceeded limit", a.name)
		}
		bytesSent := llmutils.CountMessagesContentSize(messageHistory)
		if bytesSent > bytesLimit {
			return nil, messageHistory, errors.Newf("assistant %s: the content size exceeded limit", a.name)
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallStart(ctx, a, a.LLM, messageHistory)
		}

		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messageHistory)), a.name, modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), a.name, modelName)

		resp, err = a.LLM.GenerateContent(ctx, messageHistory, callOpts...)
		if err != nil {
			return nil, messageHistory, errors.Wrap(err, "failed to generate content from LLM")
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallEnd(ctx, a, a.LLM, resp)
		}

		metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), a.name, modelName)
		tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), a.name, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), a.name, modelName)

		if len(resp.Choices) == 0 {
			retryCount++
			if retryCount >= DefaultMaxRetries {
				return nil, messageHistory, errors.Newf("assistant %s: LLM returned empty response after %d retries", a.name, retryCount)
			}
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.name,
				"status", "retrying_empty_response",
				"retry_count", retryCount,
			)
			continue
		}

		calls := collectToolCalls(resp)
		if len(calls) == 0 {
			break
		}
		if totalToolExecuted+len(calls) > toolsLimit {
			return nil, messageHistory, errors.Newf("assistant %s: the tool calls limit is exceeded", a.name)
		}

		var executed []llms.Message
		var notFound int
		executed, notFound, err = a.executeToolCalls(ctx, cfg, resp, calls)
		messageHistory = append(messageHistory, executed...)
		if err != nil {
			return nil, messageHistory, err
		}
		if !cfg.SkipToolHistory {
			runMessages = append(runMessages, executed...)
		}

		totalToolExecuted += len(calls)
		if notFound == len(calls) {
			consecutiveNotFound += notFound
		} else {
			consecutiveNotFound = 0
		}
		if consecutiveNotFound > DefaultMaxNotFound {
			return nil, messageHistory, errors.Newf("assistant %s: the number of not found tools is exceeded", a.name)
		}
	}

	contents := make([]string, len(resp.Choices))
	for i, choice := range resp.Choices {
		contents[i] = choice.Content
	}
	result := strings.Join(contents, "\n\n")

	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", a.name,
		"status", "completed",
		"choices_count", len(resp.Choices),
		"tool_calls", totalToolExecuted,
	)

	aiMessage := llms.MessageFromTextParts(llms.RoleAI, result)
	messageHistory = append(messageHistory, aiMessage)
	runMessages = append(runMessages, aiMessage)

	if cfg.Store != nil && !cfg.SkipMessageHistory {
		if err = cfg.Store.Add(ctx, runMessages...); err != nil {
			return nil, messageHistory, errors.WithMessage(err, "failed to add message history")
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.name,
			"chat_id", chatID,
			"status", "added_message_history",
			"message_history", len(runMessages),
			"human", slices.StringUpto(input.Input, 64),
			"ai", slices.StringUpto(result, 64),
		)
	}

	return &Result{
		Content:   result,
		Response:  resp,
		Messages:  messageHistory,
		ToolCalls: totalToolExecuted,
	}, nil, nil
}

// toolCall is a tool call of a response choice
type toolCall struct {
	choice int
	call   llms.ToolCall
}

// collectToolCalls returns the tool calls of all choices,
// with the missing IDs and types filled in
func collectToolCalls(resp *llms.ContentResponse) []toolCall {
	var calls []toolCall
	for ci, choice := range resp.Choices {
		for i, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				tc.FunctionCall = &llms.FunctionCall{}
			}
			if tc.ID == "" {
				tc.ID = fmt.Sprintf("%s_%d", tc.FunctionCall.Name, i)
			}
			tc.Type = values.StringsCoalesce(tc.Type, "function")
			calls = append(calls, toolCall{choice: ci, call: tc})
		}
	}
	return calls
}

type toolCallResult struct {
	content  string
	notFound bool
	err      error
}

// executeToolCalls runs the tool calls concurrently and returns the messages
// of the calls and their results: for each choice, the AI message with the
// calls of the choice followed by a tool message per call, in call order.
func (a *Assistant) executeToolCalls(ctx context.Context, cfg *Config, resp *llms.ContentResponse, calls []toolCall) ([]llms.Message, int, error) {
	results := make([]toolCallResult, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, tc := range calls {
		go func() {
			defer wg.Done()
			results[i] = a.executeToolCall(ctx, cfg, tc.call)
		}()
	}
	wg.Wait()

	var notFound int
	for i, r := range results {
		if r.notFound {
			notFound++
		}
		if r.err != nil {
			return nil, notFound, errors.WithMessagef(r.err, "failed to call tool %s", calls[i].call.FunctionCall.Name)
		}
	}

	var messages []llms.Message
	for ci := range resp.Choices {
		var choiceCalls []llms.ToolCall
		var responses []llms.Message
		for i, tc := range calls {
			if tc.choice != ci {
				continue
			}
			choiceCalls = append(choiceCalls, tc.call)
			responses = append(responses, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: tc.call.ID,
				Name:       tc.call.FunctionCall.Name,
				Content:    results[i].content,
			}))
		}
		if len(choiceCalls) == 0 {
			continue
		}
		messages = append(messages, llms.MessageFromToolCalls(llms.RoleAI, choiceCalls...))
		messages = append(messages, responses...)
	}
	return messages, notFound, nil
}

// findTool returns the tool with the exact name, or the only tool
// with the name in a different case
func (a *Assistant) findTool(name string) tools.ITool {
	if tool, ok := a.toolsByName[name]; ok {
		return tool
	}
	var found tools.ITool
	for _, tool := range a.tools {
		if strings.EqualFold(tool.Name(), name) {
			if found != nil {
				return nil
			}
			found = tool
		}
	}
	return found
}

func (a *Assistant) executeToolCall(ctx context.Context, cfg *Config, tc llms.ToolCall) toolCallResult {
	toolName := tc.FunctionCall.Name
	toolArgs := tc.FunctionCall.Arguments

	tool := a.findTool(toolName)
	if tool == nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolNotFound(ctx, a, toolName)
		}

		availableTools := strings.Join(a.toolsNames, ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.name,
			"status", "tool_not_found",
			"tool", toolName,
			"available_tools", availableTools,
		)
		return toolCallResult{
			notFound: true,
			content:  fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, availableTools),
		}
	}

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolStart(ctx, tool, a.name, toolArgs)
	}

	started := time.Now()
	res, err := tool.Call(ctx, toolArgs)
	metricskey.PerfToolCall.MeasureSince(started, toolName)

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolError(ctx, tool, a.name, toolArgs, err)
		}
		if errors.Is(err, chatmodel.ErrFailedUnmarshalInput) {
			return toolCallResult{content: "Tool call failed: " + err.Error()}
		}
		return toolCallResult{err: err}
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)
	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolEnd(ctx, tool, a.name, toolArgs, res)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", a.name,
		"status", "tool_call_response",
		"tool_call_id", tc.ID,
		"tool", toolName,
		"content_length", len(res),
	)
	return toolCallResult{content: res}
}
