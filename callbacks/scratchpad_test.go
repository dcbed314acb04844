package callbacks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/mocks/mocktools"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testAssistant struct{}

func (testAssistant) Name() string        { return "calculator" }
func (testAssistant) Description() string { return "desc" }
func (testAssistant) Run(context.Context, *assistants.CallInput) (*assistants.Result, error) {
	return nil, nil
}

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("tenant1", "chatid")
	return chatmodel.WithChatContext(context.Background(), chatCtx), chatCtx
}

func TestScratchpad_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	tool := mocktools.NewMockITool(ctrl)
	tool.EXPECT().Name().Return("Add").AnyTimes()
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()

	sp := NewScratchpad(ModeVerbose)
	ctx, chatCtx := newTestChatContext()
	a := testAssistant{}

	// events before the run are ignored
	sp.OnAssistantStart(ctx, a, "ignored")

	sp.StartRun(ctx)
	messages := []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "Add 10 + 10")}
	sp.OnAssistantStart(ctx, a, "Add 10 + 10")
	sp.OnAssistantLLMCallStart(ctx, a, llm, messages)
	sp.OnAssistantLLMCallEnd(ctx, a, llm, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        "20",
			GenerationInfo: map[string]any{"InputTokens": int64(12), "OutputTokens": int64(3)},
		}},
	})
	sp.OnToolStart(ctx, tool, a.Name(), `{"a":10,"b":10}`)
	sp.OnToolEnd(ctx, tool, a.Name(), `{"a":10,"b":10}`, "20")
	sp.OnToolError(ctx, tool, a.Name(), `{}`, errors.New("connection lost"))
	sp.OnToolNotFound(ctx, a, "Mul")
	sp.OnAssistantEnd(ctx, a, "Add 10 + 10", &assistants.Result{
		Content:  "20",
		Messages: append(messages, llms.MessageFromTextParts(llms.RoleAI, "20")),
	})
	sp.OnAssistantError(ctx, a, "Add", errors.New("failed"), nil)

	stats, out := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, chatCtx.GetChatID(), stats.ChatID)
	assert.Equal(t, chatCtx.RunID(), stats.RunID)
	assert.Equal(t, uint32(1), stats.Prompts)
	assert.Equal(t, uint32(1), stats.PromptsFailed)
	assert.Equal(t, uint32(1), stats.LLMCalls)
	assert.Equal(t, uint32(1), stats.TotalMessages)
	assert.Equal(t, uint64(12), stats.LLMInputTokens)
	assert.Equal(t, uint64(3), stats.LLMOutputTokens)
	assert.Equal(t, uint64(len("human")+len("Add 10 + 10")), stats.LLMBytesOut)
	assert.Equal(t, uint64(2), stats.LLMBytesIn)
	assert.Equal(t, uint32(1), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)

	s := string(out)
	assert.Contains(t, s, "*** Run Started ***")
	assert.Contains(t, s, "calculator *** Prompt *** Add 10 + 10")
	assert.Contains(t, s, "calculator *** LLM Call *** gpt-4o model, 1 messages")
	assert.Contains(t, s, "calculator Add *** Tool End *** 20")
	assert.Contains(t, s, "calculator *** Tool Not Found *** Mul")
	assert.Contains(t, s, "Human: Add 10 + 10\nAI: 20\n")
	assert.Contains(t, s, "calculator *** Answer *** 20")
	assert.Contains(t, s, "Tool calls: 1, Failed: 1, Not Found: 1")
	assert.Contains(t, s, "*** Run Ended.")
	assert.NotContains(t, s, "ignored")

	// the run is removed
	stats, out = sp.EndRun(ctx)
	assert.Nil(t, stats)
	assert.Nil(t, out)
}

func TestScratchpad_NoChatContext(t *testing.T) {
	sp := NewScratchpad(ModeDefault)
	sp.StartRun(context.Background())
	assert.Nil(t, sp.getRun(context.Background()))

	ctx, _ := newTestChatContext()
	assert.Nil(t, sp.getRun(ctx))
	stats, _ := sp.EndRun(ctx)
	assert.Nil(t, stats)
}

func Test_run_print_format(t *testing.T) {
	_, chatCtx := newTestChatContext()
	r := &run{chatCtx: chatCtx}
	oldTimeFn := TimeNowFn
	TimeNowFn = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { TimeNowFn = oldTimeFn }()

	r.print("hello", "again")
	lines := strings.Split(string(r.bytes()), "\n")
	assert.Equal(t, "2024-01-01 12:00:00 "+chatCtx.GetChatID()+"."+chatCtx.RunID()+" hello again", lines[0])
}
