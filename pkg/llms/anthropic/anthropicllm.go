package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/x/values"
)

// Errors of the provider
var (
	ErrMissingToken           = errors.New("anthropic: missing API key")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

// DefaultMaxTokens is used when the call does not limit the output
const DefaultMaxTokens = 4096

const requestTimeout = 5 * time.Minute

// LLM is a model served by the Anthropic Messages API
type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New returns the model, the API token and the model name are required
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		BaseURL:    "https://api.anthropic.com",
		HttpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.Token == "" {
		return nil, ErrMissingToken
	}
	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(requestTimeout),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{Client: &client, Options: options}, nil
}

// GetName returns the model name
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType returns ANTHROPIC
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent sends the conversation to the Messages API.
// The text and the tool calls of the reply are returned as a single choice.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(o.Options.Model, options...)

	sdkMessages, system, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
		Tools:     ToTools(opts.Tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	return toContentResponse(result)
}

func toContentResponse(result *anthropic.Message) (*llms.ContentResponse, error) {
	if len(result.Content) == 0 {
		return &llms.ContentResponse{}, nil
	}

	var texts []string
	var calls []llms.ToolCall
	for _, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			texts = append(texts, content.Text)
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			calls = append(calls, llms.ToolCall{
				ID:           content.ID,
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: content.Name, Arguments: string(args)},
			})
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "anthropic: %T", content)
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    strings.Join(texts, "\n"),
			StopReason: string(result.StopReason),
			ToolCalls:  calls,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.InputTokens,
				"OutputTokens": result.Usage.OutputTokens,
				"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
				"ID":           result.ID,
			},
		}},
	}, nil
}

// ToTools returns the tool parameters of the function definitions,
// the schema properties keep their declared order
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	var res []anthropic.ToolUnionParam
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}

		schema := anthropic.ToolInputSchemaParam{Type: "object"}
		if params := tool.Function.Parameters; params != nil {
			if params.Properties != nil {
				props := make(map[string]any, params.Properties.Len())
				for p := params.Properties.Oldest(); p != nil; p = p.Next() {
					props[p.Key] = p.Value
				}
				schema.Properties = props
			}
			if len(params.Required) > 0 {
				schema.Required = params.Required
			}
		}

		res = append(res, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: schema,
			},
		})
	}
	return res
}

// ProcessMessages returns the conversation as Messages API parameters and
// the system prompt joined from the system messages.
// Consecutive tool messages are sent as one user message,
// so the results of parallel tool calls follow their AI turn.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	var system []string
	res := make([]anthropic.MessageParam, 0, len(messages))
	var results []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(results) > 0 {
			res = append(res, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		if msg.Role != llms.RoleTool {
			flushResults()
		}

		switch msg.Role {
		case llms.RoleSystem:
			text, ok := msg.Parts[0].(llms.TextContent)
			if !ok {
				return nil, "", errors.WithMessage(ErrInvalidContentType, "anthropic: for system message")
			}
			system = append(system, text.Text)
		case llms.RoleHuman:
			blocks, err := humanBlocks(msg)
			if err != nil {
				return nil, "", err
			}
			res = append(res, anthropic.NewUserMessage(blocks...))
		case llms.RoleAI:
			blocks, err := aiBlocks(msg)
			if err != nil {
				return nil, "", err
			}
			res = append(res, anthropic.NewAssistantMessage(blocks...))
		case llms.RoleTool:
			blocks, err := toolResultBlocks(msg)
			if err != nil {
				return nil, "", err
			}
			results = append(results, blocks...)
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "anthropic: %v", msg.Role)
		}
	}
	flushResults()

	return res, strings.Join(system, "\n"), nil
}

func humanBlocks(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		text, ok := part.(llms.TextContent)
		if !ok {
			return nil, errors.Errorf("anthropic: unsupported human message part type: %T", part)
		}
		blocks = append(blocks, anthropic.NewTextBlock(text.Text))
	}
	return blocks, nil
}

func aiBlocks(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return nil, errors.Errorf("anthropic: tool call %s has no function", p.ID)
			}
			var input json.RawMessage
			if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &input); err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to unmarshal tool call arguments")
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(p.ID, input, p.FunctionCall.Name))
		default:
			return nil, errors.Errorf("anthropic: unsupported AI message part type: %T", part)
		}
	}
	return blocks, nil
}

func toolResultBlocks(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		resp, ok := part.(llms.ToolCallResponse)
		if !ok {
			return nil, errors.WithMessagef(ErrInvalidContentType, "anthropic: for tool message part type: %T", part)
		}
		blocks = append(blocks, anthropic.NewToolResultBlock(resp.ToolCallID, resp.Content, false))
	}
	return blocks, nil
}
