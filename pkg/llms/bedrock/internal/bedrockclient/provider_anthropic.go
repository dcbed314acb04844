package bedrockclient

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

// anthropicInputContent is a single content block of a message.
type anthropicInputContent struct {
	// One of: "text", "tool_use", "tool_result"
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicInputMessage struct {
	// One of: "user", "assistant"
	Role    string                  `json:"role"`
	Content []anthropicInputContent `json:"content"`
}

type anthropicTool struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema anthropicInputSchema `json:"input_schema"`
}

type anthropicInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

type anthropicInput struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []*anthropicInputMessage `json:"messages"`
	Temperature      float64                  `json:"temperature,omitempty"`
	TopP             float64                  `json:"top_p,omitempty"`
	StopSequences    []string                 `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool          `json:"tools,omitempty"`
}

type anthropicOutputContent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
}

type anthropicOutput struct {
	Type       string                   `json:"type"`
	Role       string                   `json:"role"`
	Content    []anthropicOutputContent `json:"content"`
	StopReason string                   `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Finish reason for the completion of the generation.
const (
	AnthropicCompletionReasonEndTurn      = "end_turn"
	AnthropicCompletionReasonMaxTokens    = "max_tokens"
	AnthropicCompletionReasonStopSequence = "stop_sequence"
	AnthropicCompletionReasonToolUse      = "tool_use"
)

// AnthropicLatestVersion is the messages API version on Bedrock
const AnthropicLatestVersion = "bedrock-2023-05-31"

const (
	AnthropicSystem        = "system"
	AnthropicRoleUser      = "user"
	AnthropicRoleAssistant = "assistant"
)

const (
	AnthropicMessageTypeText       = "text"
	AnthropicMessageTypeToolUse    = "tool_use"
	AnthropicMessageTypeToolResult = "tool_result"
)

func createAnthropicCompletion(ctx context.Context,
	api InvokeModelAPI,
	modelID string,
	messages []Message,
	options *llms.CallOptions,
) (*llms.ContentResponse, error) {
	inputContents, systemPrompt, err := processInputMessagesAnthropic(messages)
	if err != nil {
		return nil, err
	}

	input := anthropicInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        getMaxTokens(options.MaxTokens, 2048),
		System:           systemPrompt,
		Messages:         inputContents,
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		StopSequences:    options.StopWords,
		Tools:            toAnthropicTools(options.Tools),
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("*/*"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to decode response")
	}

	if len(output.Content) == 0 {
		return nil, errors.New("no results")
	} else if stopReason := output.StopReason; stopReason != AnthropicCompletionReasonEndTurn &&
		stopReason != AnthropicCompletionReasonStopSequence &&
		stopReason != AnthropicCompletionReasonToolUse {
		return nil, errors.New("completed due to " + stopReason + ". Maybe try increasing max tokens")
	}

	var textContent string
	var toolCalls []llms.ToolCall
	for _, c := range output.Content {
		switch c.Type {
		case AnthropicMessageTypeText:
			textContent += c.Text
		case AnthropicMessageTypeToolUse:
			argumentsJSON, err := json.Marshal(c.Input)
			if err != nil {
				return nil, errors.Wrap(err, "failed to marshal tool arguments")
			}
			toolCalls = append(toolCalls, llms.ToolCall{
				ID:   c.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      c.Name,
					Arguments: string(argumentsJSON),
				},
			})
		}
	}

	generationInfo := map[string]any{
		"InputTokens":  output.Usage.InputTokens,
		"OutputTokens": output.Usage.OutputTokens,
		"TotalTokens":  output.Usage.InputTokens + output.Usage.OutputTokens,
	}
	choice := &llms.ContentChoice{
		Content:        textContent,
		StopReason:     output.StopReason,
		GenerationInfo: generationInfo,
		ToolCalls:      toolCalls,
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}

func toAnthropicTools(tools []llms.Tool) []anthropicTool {
	var res []anthropicTool
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		schema := anthropicInputSchema{Type: "object"}
		if params := tool.Function.Parameters; params != nil {
			if params.Properties != nil {
				schema.Properties = make(map[string]any)
				for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
					schema.Properties[pair.Key] = pair.Value
				}
			}
			schema.Required = params.Required
		}
		res = append(res, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}
	return res
}

// processInputMessagesAnthropic merges consecutive messages of the same
// Anthropic role into one message, returns the messages and the system prompt.
func processInputMessagesAnthropic(messages []Message) ([]*anthropicInputMessage, string, error) {
	inputContents := make([]*anthropicInputMessage, 0, len(messages))
	var systemPrompt string
	var current *anthropicInputMessage

	for _, message := range messages {
		role, err := getAnthropicRole(message.Role)
		if err != nil {
			return nil, "", err
		}
		if role == AnthropicSystem {
			if message.Type != AnthropicMessageTypeText {
				return nil, "", errors.New("system prompt must be text")
			}
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += message.Content
			continue
		}

		if current == nil || current.Role != role {
			current = &anthropicInputMessage{Role: role}
			inputContents = append(inputContents, current)
		}
		c, err := getAnthropicInputContent(message)
		if err != nil {
			return nil, "", err
		}
		current.Content = append(current.Content, c)
	}
	return inputContents, systemPrompt, nil
}

func getAnthropicRole(role llms.Role) (string, error) {
	switch role {
	case llms.RoleSystem:
		return AnthropicSystem, nil
	case llms.RoleAI:
		return AnthropicRoleAssistant, nil
	case llms.RoleHuman, llms.RoleTool:
		return AnthropicRoleUser, nil
	default:
		return "", errors.Newf("role not supported: %s", role)
	}
}

func getAnthropicInputContent(message Message) (anthropicInputContent, error) {
	switch message.Type {
	case AnthropicMessageTypeText:
		return anthropicInputContent{
			Type: message.Type,
			Text: message.Content,
		}, nil
	case AnthropicMessageTypeToolUse:
		var input any = map[string]any{}
		if message.ToolInput != "" {
			if err := json.Unmarshal([]byte(message.ToolInput), &input); err != nil {
				return anthropicInputContent{}, errors.Wrap(err, "invalid tool input")
			}
		}
		return anthropicInputContent{
			Type:  message.Type,
			ID:    message.ToolCallID,
			Name:  message.ToolName,
			Input: input,
		}, nil
	case AnthropicMessageTypeToolResult:
		return anthropicInputContent{
			Type:      message.Type,
			ToolUseID: message.ToolCallID,
			Content:   message.Content,
		}, nil
	default:
		return anthropicInputContent{}, errors.Newf("unsupported content type: %s", message.Type)
	}
}
