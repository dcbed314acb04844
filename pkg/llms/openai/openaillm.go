package openai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/openai/internal/openaiclient"
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// ErrEmptyResponse is returned when the model returns no choices.
var ErrEmptyResponse = openaiclient.ErrEmptyResponse

// LLM is an OpenAI chat model.
type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	var cfg openaiclient.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, errors.New("missing the OpenAI API key")
	}
	return &LLM{client: openaiclient.New(cfg)}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	if o.client.Model == "" {
		return openaiclient.DefaultChatModel
	}
	return o.client.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(o.client.Model, options...)

	chatMsgs, err := toChatMessages(messages)
	if err != nil {
		return nil, err
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		MaxCompletionTokens: opts.MaxTokens,
		StopWords:           opts.StopWords,
		Metadata:            opts.Metadata,
	}
	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = opts.ToolChoice
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: tool.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func toChatMessages(messages []llms.Message) ([]*openaiclient.ChatMessage, error) {
	chatMsgs := make([]*openaiclient.ChatMessage, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem, llms.RoleHuman, llms.RoleAI:
			msg := &openaiclient.ChatMessage{Role: roleOf(mc.Role)}
			text := ""
			for _, part := range mc.Parts {
				switch p := part.(type) {
				case llms.TextContent:
					text += p.Text
				case llms.ToolCall:
					msg.ToolCalls = append(msg.ToolCalls, toolCallFromToolCall(p))
				default:
					return nil, errors.Errorf("part of type %T is not supported for role %v", part, mc.Role)
				}
			}
			msg.Content = text
			chatMsgs = append(chatMsgs, msg)
		case llms.RoleTool:
			// each response is a separate message
			for _, part := range mc.Parts {
				p, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, part)
				}
				chatMsgs = append(chatMsgs, &openaiclient.ChatMessage{
					Role:       RoleTool,
					ToolCallID: p.ToolCallID,
					Content:    p.Content,
				})
			}
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}
	}
	return chatMsgs, nil
}

func roleOf(role llms.Role) string {
	switch role {
	case llms.RoleSystem:
		return RoleSystem
	case llms.RoleAI:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// toolFromTool converts an llms.Tool to a Tool.
func toolFromTool(t llms.Tool) (openaiclient.Tool, error) {
	if t.Type != "function" || t.Function == nil {
		return openaiclient.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	return openaiclient.Tool{
		Type: t.Type,
		Function: openaiclient.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
			Strict:      t.Function.Strict,
		},
	}, nil
}

func toolCallFromToolCall(tc llms.ToolCall) openaiclient.ToolCall {
	res := openaiclient.ToolCall{
		ID:   tc.ID,
		Type: tc.Type,
	}
	if res.Type == "" {
		res.Type = "function"
	}
	if tc.FunctionCall != nil {
		res.Function = openaiclient.ToolFunction{
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		}
	}
	return res
}
