package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var (
	_ assistants.Callback = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
)

// Mode of the event details
type Mode int

const (
	// ModeDefault reports the events
	ModeDefault Mode = iota
	// ModeVerbose reports the events with the tool inputs and outputs
	ModeVerbose
)

// Fanout forwards every event to its callbacks, in the order they were added
type Fanout struct {
	callbacks []assistants.Callback
}

// NewFanout returns the callback forwarding to callbacks
func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

// Add appends the callback, it must not be called while a prompt is running
func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) each(fn func(assistants.Callback)) {
	for _, cb := range l.callbacks {
		fn(cb)
	}
}

func (l *Fanout) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	l.each(func(cb assistants.Callback) { cb.OnAssistantStart(ctx, a, input) })
}

func (l *Fanout) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, input string, res *assistants.Result) {
	l.each(func(cb assistants.Callback) { cb.OnAssistantEnd(ctx, a, input, res) })
}

func (l *Fanout) OnAssistantError(ctx context.Context, a assistants.IAssistant, input string, err error, messages []llms.Message) {
	l.each(func(cb assistants.Callback) { cb.OnAssistantError(ctx, a, input, err, messages) })
}

func (l *Fanout) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.each(func(cb assistants.Callback) { cb.OnAssistantLLMCallStart(ctx, a, llm, payload) })
}

func (l *Fanout) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.each(func(cb assistants.Callback) { cb.OnAssistantLLMCallEnd(ctx, a, llm, resp) })
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	l.each(func(cb assistants.Callback) { cb.OnToolStart(ctx, tool, assistantName, input) })
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
	l.each(func(cb assistants.Callback) { cb.OnToolEnd(ctx, tool, assistantName, input, output) })
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
	l.each(func(cb assistants.Callback) { cb.OnToolError(ctx, tool, assistantName, input, err) })
}

func (l *Fanout) OnToolNotFound(ctx context.Context, a assistants.IAssistant, tool string) {
	l.each(func(cb assistants.Callback) { cb.OnToolNotFound(ctx, a, tool) })
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

// NewPrinter returns the callback writing the events to out
func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) write(head string, details ...string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintln(l.Out, head)
	for _, d := range details {
		fmt.Fprintln(l.Out, d)
	}
}

// verbose returns the labeled value in ModeVerbose
func (l *Printer) verbose(label, value string) []string {
	if l.Mode != ModeVerbose {
		return nil
	}
	return []string{label + ": " + value}
}

func (l *Printer) OnAssistantStart(_ context.Context, a assistants.IAssistant, input string) {
	l.write("Assistant Start: "+a.Name(), "Input: "+input)
}

func (l *Printer) OnAssistantEnd(_ context.Context, a assistants.IAssistant, _ string, res *assistants.Result) {
	l.write(fmt.Sprintf("Assistant End: %s, %d tool calls", a.Name(), res.ToolCalls), l.verbose("Output", res.Content)...)
}

func (l *Printer) OnAssistantError(_ context.Context, a assistants.IAssistant, _ string, err error, _ []llms.Message) {
	l.write(fmt.Sprintf("Assistant Error: %s: %s", a.Name(), err.Error()))
}

func (l *Printer) OnAssistantLLMCallStart(_ context.Context, a assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.write(fmt.Sprintf("LLM Call: %s: %s model, %d messages", a.Name(), llm.GetName(), len(payload)))
}

func (l *Printer) OnAssistantLLMCallEnd(_ context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.write(fmt.Sprintf("LLM Call End: %s: %s model, %d choices", a.Name(), llm.GetName(), len(resp.Choices)))
}

func (l *Printer) OnToolStart(_ context.Context, tool tools.ITool, assistantName, input string) {
	l.write(fmt.Sprintf("Tool Start: %s (%s)", tool.Name(), assistantName), l.verbose("Input", input)...)
}

func (l *Printer) OnToolEnd(_ context.Context, tool tools.ITool, assistantName, _ string, output string) {
	l.write(fmt.Sprintf("Tool End: %s (%s)", tool.Name(), assistantName), l.verbose("Output", output)...)
}

func (l *Printer) OnToolError(_ context.Context, tool tools.ITool, assistantName, _ string, err error) {
	l.write(fmt.Sprintf("Tool Error: %s (%s): %s", tool.Name(), assistantName, err.Error()))
}

func (l *Printer) OnToolNotFound(_ context.Context, a assistants.IAssistant, tool string) {
	l.write(fmt.Sprintf("Tool Not Found: %s (%s)", tool, a.Name()))
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAssistantStart(ctx context.Context, a assistants.IAssistant, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_start",
		"assistant", a.Name(),
		"input", slices.StringUpto(input, 64),
	)
}

func (l *PackageLogger) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, _ string, res *assistants.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_end",
		"assistant", a.Name(),
		"tool_calls", res.ToolCalls,
		"result", slices.StringUpto(res.Content, 64),
	)
}

func (l *PackageLogger) OnAssistantError(ctx context.Context, a assistants.IAssistant, _ string, err error, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "assistant_error",
		"assistant", a.Name(),
		"messages", len(messages),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"assistant", a.Name(),
		"model", llm.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"assistant", a.Name(),
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"assistant", assistantName,
		"tool", tool.Name(),
		"input", slices.StringUpto(input, 64),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, _ string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"assistant", assistantName,
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 64),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, assistantName, _ string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"assistant", assistantName,
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, a assistants.IAssistant, tool string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"assistant", a.Name(),
		"tool", tool,
	)
}
