package bedrockclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProvider(t *testing.T) {
	tests := []struct {
		name     string
		modelID  string
		expected string
	}{
		{
			name:     "Direct Anthropic model ID",
			modelID:  "anthropic.claude-3-sonnet-20240229-v1:0",
			expected: "anthropic",
		},
		{
			name:     "Inference Profile with US region",
			modelID:  "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
			expected: "anthropic",
		},
		{
			name:     "Inference Profile with EU region",
			modelID:  "eu.anthropic.claude-3-haiku-20240307-v1:0",
			expected: "anthropic",
		},
		{
			name:     "Direct Amazon model ID",
			modelID:  "amazon.titan-text-premier-v1:0",
			expected: "amazon",
		},
		{
			name:     "Inference Profile with Meta",
			modelID:  "us.meta.llama3-2-11b-instruct-v1:0",
			expected: "meta",
		},
		{
			name:     "Single part model ID",
			modelID:  "anthropic",
			expected: "anthropic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getProvider(tt.modelID))
		})
	}
}

func TestProcessInputMessagesAnthropic(t *testing.T) {
	msgs, system, err := processInputMessagesAnthropic([]Message{
		{Role: llms.RoleSystem, Type: "text", Content: "You are a calculator."},
		{Role: llms.RoleHuman, Type: "text", Content: "Add 10 + 10"},
		{Role: llms.RoleAI, Type: "tool_use", ToolCallID: "t1", ToolName: "Add", ToolInput: `{"a":10,"b":10}`},
		{Role: llms.RoleAI, Type: "tool_use", ToolCallID: "t2", ToolName: "Sub", ToolInput: `{"a":10,"b":3}`},
		{Role: llms.RoleTool, Type: "tool_result", ToolCallID: "t1", Content: "20"},
		{Role: llms.RoleTool, Type: "tool_result", ToolCallID: "t2", Content: "7"},
		{Role: llms.RoleHuman, Type: "text", Content: "and?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "You are a calculator.", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, "t2", msgs[1].Content[1].ID)
	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 3)
	assert.Equal(t, "t1", msgs[2].Content[0].ToolUseID)
	assert.Equal(t, "and?", msgs[2].Content[2].Text)

	_, _, err = processInputMessagesAnthropic([]Message{{Role: "generic", Type: "text"}})
	assert.EqualError(t, err, "role not supported: generic")

	_, _, err = processInputMessagesAnthropic([]Message{{Role: llms.RoleSystem, Type: "tool_use"}})
	assert.EqualError(t, err, "system prompt must be text")

	_, _, err = processInputMessagesAnthropic([]Message{{Role: llms.RoleAI, Type: "tool_use", ToolInput: "{"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tool input")
}

type fakeAPI struct {
	input *bedrockruntime.InvokeModelInput
	reply string
	err   error
}

func (f *fakeAPI) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.reply)}, nil
}

func TestCreateCompletion(t *testing.T) {
	api := &fakeAPI{
		reply: `{"type":"message","role":"assistant","stop_reason":"tool_use",
			"content":[{"type":"text","text":"Adding."},{"type":"tool_use","id":"t1","name":"Add","input":{"a":10,"b":10}}],
			"usage":{"input_tokens":11,"output_tokens":7}}`,
	}
	c := NewClient(api)

	opts := llms.NewCallOptions("us.anthropic.claude-3-5-sonnet-20241022-v2:0", llms.WithMaxTokens(100))
	resp, err := c.CreateCompletion(context.Background(), opts.Model, []Message{
		{Role: llms.RoleHuman, Type: "text", Content: "Add 10 + 10"},
	}, opts)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Adding.", resp.Choices[0].Content)
	require.Len(t, resp.Choices[0].ToolCalls, 1)
	assert.JSONEq(t, `{"a":10,"b":10}`, resp.Choices[0].ToolCalls[0].FunctionCall.Arguments)
	assert.Equal(t, 18, resp.Choices[0].GenerationInfo["TotalTokens"])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(api.input.Body, &sent))
	assert.Equal(t, AnthropicLatestVersion, sent["anthropic_version"])
	assert.EqualValues(t, 100, sent["max_tokens"])
	assert.Equal(t, "us.anthropic.claude-3-5-sonnet-20241022-v2:0", *api.input.ModelId)

	api.reply = `{"type":"message","stop_reason":"max_tokens","content":[{"type":"text","text":"..."}]}`
	_, err = c.CreateCompletion(context.Background(), opts.Model, nil, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increasing max tokens")

	api.err = errors.New("throttled")
	_, err = c.CreateCompletion(context.Background(), opts.Model, nil, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	_, err = c.CreateCompletion(context.Background(), "amazon.titan-text-lite-v1", nil, opts)
	assert.EqualError(t, err, "bedrock: unsupported provider: amazon")
}
