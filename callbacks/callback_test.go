package callbacks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/mocks/mocktools"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type fakeAssistant struct {
	name string
}

func (a *fakeAssistant) Name() string        { return a.name }
func (a *fakeAssistant) Description() string { return "desc" }
func (a *fakeAssistant) Run(context.Context, *assistants.CallInput) (*assistants.Result, error) {
	return nil, nil
}

func newMocks(t *testing.T) (*mocktools.MockITool, *mockllms.MockModel) {
	ctrl := gomock.NewController(t)
	tool := mocktools.NewMockITool(ctrl)
	tool.EXPECT().Name().Return("Add").AnyTimes()
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()
	return tool, llm
}

var (
	testResult = &assistants.Result{
		Content:   "20",
		ToolCalls: 1,
		Messages: []llms.Message{
			llms.MessageFromTextParts(llms.RoleHuman, "Add 10 + 10"),
			llms.MessageFromTextParts(llms.RoleAI, "20"),
		},
	}
	testResponse = &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "20",
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(2),
				},
			},
		},
	}
)

func emit(ctx context.Context, cb assistants.Callback, a assistants.IAssistant, tool *mocktools.MockITool, llm *mockllms.MockModel) {
	cb.OnAssistantStart(ctx, a, "Add 10 + 10")
	cb.OnAssistantLLMCallStart(ctx, a, llm, testResult.Messages[:1])
	cb.OnAssistantLLMCallEnd(ctx, a, llm, testResponse)
	cb.OnToolStart(ctx, tool, a.Name(), `{"a":10,"b":10}`)
	cb.OnToolEnd(ctx, tool, a.Name(), `{"a":10,"b":10}`, "20")
	cb.OnToolError(ctx, tool, a.Name(), `{"a":10}`, errors.New("missing b"))
	cb.OnToolNotFound(ctx, a, "Mul")
	cb.OnAssistantEnd(ctx, a, "Add 10 + 10", testResult)
	cb.OnAssistantError(ctx, a, "Add 10 + 10", errors.New("test error"), testResult.Messages)
}

func TestPrinter(t *testing.T) {
	tool, llm := newMocks(t)
	ast := &fakeAssistant{name: "calculator"}

	var buf bytes.Buffer
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeVerbose), ast, tool, llm)

	exp := `Assistant Start: calculator
Input: Add 10 + 10
LLM Call: calculator: gpt-4o model, 1 messages
LLM Call End: calculator: gpt-4o model, 1 choices
Tool Start: Add (calculator)
Input: {"a":10,"b":10}
Tool End: Add (calculator)
Output: 20
Tool Error: Add (calculator): missing b
Tool Not Found: Mul (calculator)
Assistant End: calculator, 1 tool calls
Output: 20
Assistant Error: calculator: test error
`
	assert.Equal(t, exp, buf.String())

	buf.Reset()
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeDefault), ast, tool, llm)
	assert.NotContains(t, buf.String(), "Output:")
	assert.NotContains(t, buf.String(), `Input: {"a"`)
}

func TestFanout(t *testing.T) {
	tool, llm := newMocks(t)
	ast := &fakeAssistant{name: "calculator"}

	var buf1, buf2 bytes.Buffer
	fanout := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fanout.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fanout.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "callbacks_test")))

	emit(context.Background(), fanout, ast, tool, llm)
	assert.NotEmpty(t, buf1.String())
	assert.Equal(t, buf1.String(), buf2.String())
}
