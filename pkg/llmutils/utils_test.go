package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"a\": 10, \"b\": 10}\n\n```\n\n"
	assert.Equal(t, `{"a": 10, "b": 10}`, string(llmutils.CleanJSON([]byte(llmOutput))))

	llmOutput = "Here you go:\n```json\n\n[{\"a\": 10}]\n```\n\n"
	assert.Equal(t, `[{"a": 10}]`, string(llmutils.CleanJSON([]byte(llmOutput))))

	assert.Equal(t, "no json", string(llmutils.CleanJSON([]byte("no json"))))
	assert.Equal(t, `{"a":1}`, string(llmutils.CleanJSON([]byte(`{"a":1}`))))
}

func Test_TrimBackticks(t *testing.T) {
	expected := `{"city": "Paris", "country": "France"}`

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
}

func Test_BackticksJSON(t *testing.T) {
	assert.Equal(t, "\n```json\n{\"a\": 1}\n```\n", llmutils.BackticksJSON(" {\"a\": 1}\n"))
}

func Test_Marshal(t *testing.T) {
	type args struct {
		A float64 `json:"a" yaml:"a"`
		B float64 `json:"b" yaml:"b"`
	}
	v := args{A: 10, B: 3}
	assert.Equal(t, `{"a":10,"b":3}`, llmutils.ToJSON(v))
	assert.Equal(t, "{\n\t\"a\": 10,\n\t\"b\": 3\n}", llmutils.ToJSONIndent(v))
	assert.Equal(t, "{\n\t\"a\": 10,\n\t\"b\": 3\n}", llmutils.JSONIndent(`{"a":10,"b":3}`))
	assert.Equal(t, "a: 10\nb: 3\n", llmutils.ToYAML(v))
}

func Test_MergeInputs(t *testing.T) {
	configInputs := map[string]any{
		"name": "calculator",
		"tone": "short",
	}
	userInputs := map[string]any{
		"tone":  "verbose",
		"extra": 1,
	}
	expected := map[string]any{
		"name":  "calculator",
		"tone":  "verbose",
		"extra": 1,
	}
	assert.Equal(t, expected, llmutils.MergeInputs(configInputs, userInputs))
	assert.Empty(t, llmutils.MergeInputs(nil, nil))
}

func Test_EnsureNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline(" \n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline(" \nHello"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("\nHello\n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("Hello\n\n\n"))
}

func history() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are a calculator."),
		llms.MessageFromTextParts(llms.RoleHuman, "Add 10 + 10"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "Add", Arguments: `{"a":10,"b":10}`}}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "c1", Name: "Add", Content: "20"}),
		llms.MessageFromTextParts(llms.RoleAI, "10 + 10 = 20\n"),
	}
}

func Test_PrintMessages(t *testing.T) {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, history())
	exp := `System: You are a calculator.
Human: Add 10 + 10
AI: call c1 Add({"a":10,"b":10})
Tool: c1 Add => 20
AI: 10 + 10 = 20
`
	assert.Equal(t, exp, buf.String())

	buf.Reset()
	llmutils.PrintMessages(&buf, []llms.Message{llms.MessageFromTextParts("generic", "x")})
	assert.Equal(t, "generic: x\n", buf.String())
}

func Test_CountMessagesContentSize(t *testing.T) {
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "Hello"),
	}
	assert.Equal(t, uint64(len("human")+len("Hello")), llmutils.CountMessagesContentSize(msgs))
	assert.Greater(t, llmutils.CountMessagesContentSize(history()), uint64(50))
	assert.Equal(t, uint64(0), llmutils.CountMessagesContentSize(nil))
}

func Test_CountResponse(t *testing.T) {
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "Hello world",
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
					"TotalTokens":  int64(15),
				},
			},
			{
				ToolCalls: []llms.ToolCall{
					{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "Add", Arguments: "{}"}},
				},
			},
		},
	}
	assert.Equal(t, uint64(len("Hello world")+len("1function")+len("Add{}")), llmutils.CountResponseContentSize(resp))

	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(10), in)
	assert.Equal(t, int64(5), out)
	assert.Equal(t, int64(15), total)
}
