package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_GetContent(t *testing.T) {
	assert.Equal(t, "Add 10 + 10\n", MessageFromTextParts(RoleHuman, "Add 10 + 10").GetContent())
	assert.Equal(t, "one\ntwo\n", MessageFromTextParts(RoleHuman, "one", "two\n").GetContent())

	msg := MessageFromParts(RoleAI,
		TextPart("calling"),
		ToolCall{ID: "c1", Type: "function", FunctionCall: &FunctionCall{Name: "Add", Arguments: "{}"}},
	)
	assert.Equal(t,
		"calling\nTool Call: {\"type\":\"tool_call\",\"tool_call\":{\"function\":{\"name\":\"Add\",\"arguments\":\"{}\"},\"id\":\"c1\",\"type\":\"function\"}}\n",
		msg.GetContent())

	resp := MessageFromToolResponse(RoleTool, ToolCallResponse{ToolCallID: "c1", Name: "Add", Content: "20"})
	assert.Equal(t,
		"Response: {\"type\":\"tool_response\",\"tool_response\":{\"tool_call_id\":\"c1\",\"name\":\"Add\",\"content\":\"20\"}}\n",
		resp.GetContent())
}

func TestParts_String(t *testing.T) {
	tc := ToolCall{ID: "c1", FunctionCall: &FunctionCall{Name: "Sub", Arguments: `{"a":10,"b":3}`}}
	assert.Equal(t, `ToolCall: c1 (Sub), input: {"a":10,"b":3}`, tc.String())

	tr := ToolCallResponse{ToolCallID: "c1", Name: "Sub", Content: "7"}
	assert.Equal(t, "ToolCallResponse: c1 (Sub), response size: 1", tr.String())
	assert.Equal(t, "hi", TextPart("hi").String())
}

func TestCallOptions(t *testing.T) {
	opts := NewCallOptions("gpt-3.5-turbo-0125",
		WithMaxTokens(100),
		WithTemperature(0.2),
		WithTopP(0.9),
		WithStopWords([]string{"STOP"}),
		WithToolChoice(ToolChoiceRequired),
		WithTools([]Tool{{Type: "function", Function: &FunctionDefinition{Name: "Add"}}}),
		WithMetadata(map[string]any{"chat": "1"}),
	)
	assert.Equal(t, "gpt-3.5-turbo-0125", opts.Model)
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 0.9, opts.TopP)
	assert.Equal(t, []string{"STOP"}, opts.StopWords)
	assert.Equal(t, ToolChoiceRequired, opts.ToolChoice)
	assert.Len(t, opts.Tools, 1)
	assert.Equal(t, "1", opts.Metadata["chat"])

	assert.Equal(t, "gpt-4o", NewCallOptions("gpt-3.5-turbo-0125", WithModel("gpt-4o")).Model)
}

func TestProviderCapabilities(t *testing.T) {
	for _, p := range []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderBedrock} {
		assert.True(t, p.Supports(CapabilityFunctionCalling), p)
		assert.True(t, p.Supports(CapabilitySystemPrompt), p)
	}
	assert.False(t, ProviderType("OTHER").Supports(CapabilityText))
	assert.Equal(t, Capability(0), ProviderCapabilities("OTHER"))
}
