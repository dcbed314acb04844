package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/tools"
)

var _ assistants.Callback = (*Scratchpad)(nil)

// TimeNowFn returns the timestamp of the scratchpad entries
var TimeNowFn = time.Now

// RunStats are the counters of a run
type RunStats struct {
	ChatID string
	RunID  string

	Duration            time.Duration
	TotalMessages       uint32
	LLMCalls            uint32
	LLMBytesOut         uint64
	LLMBytesIn          uint64
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	Prompts             uint32
	PromptsFailed       uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// Scratchpad records the events of the runs of a chat,
// with the stats of the run.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

// NewScratchpad returns the scratchpad
func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts recording the events of the chat in ctx
func (l *Scratchpad) StartRun(ctx context.Context) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	r := &run{
		stats: RunStats{
			ChatID: chatCtx.GetChatID(),
			RunID:  chatCtx.RunID(),
		},
		chatCtx: chatCtx,
		started: time.Now(),
	}
	r.print("*** Run Started ***")

	l.lock.Lock()
	l.runs[chatCtx.GetChatID()] = r
	l.lock.Unlock()
}

// EndRun stops recording and returns the stats and the recorded events.
// Returns nil if the run was not started.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	r := l.getRun(ctx)
	if r == nil {
		return nil, nil
	}

	l.lock.Lock()
	delete(l.runs, r.chatCtx.GetChatID())
	l.lock.Unlock()

	stats := r.snapshot()
	stats.Duration = time.Since(r.started)

	r.print(fmt.Sprintf("Prompts: %d, Failed: %d", stats.Prompts, stats.PromptsFailed))
	r.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	r.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Input Tokens: %d, Output Tokens: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
	))
	r.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	return &stats, r.bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[chatCtx.GetChatID()]
}

func (l *Scratchpad) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.Prompts, 1)
	r.print(a.Name(), "*** Prompt ***", input)
}

func (l *Scratchpad) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, _ string, res *assistants.Result) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	if l.mode == ModeVerbose {
		r.print(a.Name(), "Messages:\n"+formatMessages(res.Messages))
	}
	r.print(a.Name(), "*** Answer ***", res.Content)
}

func (l *Scratchpad) OnAssistantError(ctx context.Context, a assistants.IAssistant, _ string, err error, messages []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.PromptsFailed, 1)
	r.print(a.Name(), "*** Error ***", err.Error())
	if l.mode == ModeVerbose {
		r.print(a.Name(), "Messages:\n"+formatMessages(messages))
	}
}

func (l *Scratchpad) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	count := uint32(len(payload))
	atomic.AddUint32(&r.stats.LLMCalls, 1)
	atomic.AddUint32(&r.stats.TotalMessages, count)
	atomic.AddUint64(&r.stats.LLMBytesOut, llmutils.CountMessagesContentSize(payload))

	r.print(a.Name(), "*** LLM Call ***", fmt.Sprintf("%s model, %d messages", llm.GetName(), count))
}

func (l *Scratchpad) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
	atomic.AddUint64(&r.stats.LLMInputTokens, uint64(tokensIn))
	atomic.AddUint64(&r.stats.LLMOutputTokens, uint64(tokensOut))
	atomic.AddUint64(&r.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))

	r.print(a.Name(), "*** LLM Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens", llm.GetName(), tokensIn, tokensOut))
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCalls, 1)
	r.print(assistantName, tool.Name(), "*** Tool Start ***", input)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, _ string, output string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsSucceeded, 1)
	r.print(assistantName, tool.Name(), "*** Tool End ***", output)
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, assistantName, _ string, err error) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsFailed, 1)
	r.print(assistantName, tool.Name(), "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, a assistants.IAssistant, tool string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolNotFound, 1)
	r.print(a.Name(), "*** Tool Not Found ***", tool)
}

func formatMessages(messages []llms.Message) string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, messages)
	return buf.String()
}

type run struct {
	chatCtx chatmodel.ChatContext
	started time.Time
	stats   RunStats

	lock sync.Mutex
	w    bytes.Buffer
}

func (r *run) snapshot() RunStats {
	return RunStats{
		ChatID:              r.stats.ChatID,
		RunID:               r.stats.RunID,
		TotalMessages:       atomic.LoadUint32(&r.stats.TotalMessages),
		LLMCalls:            atomic.LoadUint32(&r.stats.LLMCalls),
		LLMBytesOut:         atomic.LoadUint64(&r.stats.LLMBytesOut),
		LLMBytesIn:          atomic.LoadUint64(&r.stats.LLMBytesIn),
		LLMInputTokens:      atomic.LoadUint64(&r.stats.LLMInputTokens),
		LLMOutputTokens:     atomic.LoadUint64(&r.stats.LLMOutputTokens),
		Prompts:             atomic.LoadUint32(&r.stats.Prompts),
		PromptsFailed:       atomic.LoadUint32(&r.stats.PromptsFailed),
		ToolsCalls:          atomic.LoadUint32(&r.stats.ToolsCalls),
		ToolsCallsSucceeded: atomic.LoadUint32(&r.stats.ToolsCallsSucceeded),
		ToolsCallsFailed:    atomic.LoadUint32(&r.stats.ToolsCallsFailed),
		ToolNotFound:        atomic.LoadUint32(&r.stats.ToolNotFound),
	}
}

func (r *run) bytes() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return bytes.Clone(r.w.Bytes())
}

// print writes the entries as a line:
// timestamp chatID.runID entry entry
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.w.WriteString(TimeNowFn().Format(time.DateTime))
	r.w.WriteString(" ")
	r.w.WriteString(r.chatCtx.GetChatID())
	r.w.WriteString(".")
	r.w.WriteString(r.chatCtx.RunID())
	for _, entry := range entries {
		r.w.WriteString(" ")
		r.w.WriteString(entry)
	}
	r.w.WriteString("\n")
}
