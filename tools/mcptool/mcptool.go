// Package mcptool binds the tools of an MCP server to the assistants.
package mcptool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/tools", "mcptool")

//go:generate mockgen -source=mcptool.go -destination=../../mocks/mockmcptool/mcptool_mock.gen.go -package mockmcptool

// Invoker calls a tool on the server, mcp.Client implements it
type Invoker interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
}

var _ Invoker = (*mcp.Client)(nil)

// FailedPrefix starts the text returned to the model for a failed invocation
const FailedPrefix = "Tool call failed: "

// Tool is a tool of the MCP server, callable by an assistant
type Tool struct {
	invoker    Invoker
	descriptor *mcp.ToolDescriptor
	schema     *jsonschema.Schema
}

var _ tools.ITool = (*Tool)(nil)

// New returns the tool for the descriptor, invoked with invoker
func New(invoker Invoker, descriptor *mcp.ToolDescriptor) *Tool {
	d := descriptor.Clone()
	return &Tool{
		invoker:    invoker,
		descriptor: d,
		schema:     mcp.InputSchema(d),
	}
}

// Bind returns a new builder with the tools of the descriptors added,
// in order. The builder b is not modified.
func Bind(b *assistants.Builder, invoker Invoker, descriptors []*mcp.ToolDescriptor) *assistants.Builder {
	for _, d := range descriptors {
		b = b.WithTools(New(invoker, d))
	}
	return b
}

// Name returns the name of the Tool.
func (t *Tool) Name() string {
	return t.descriptor.Name
}

// Description returns the description of the tool.
func (t *Tool) Description() string {
	return t.descriptor.Description
}

// Parameters returns the input schema of the tool.
func (t *Tool) Parameters() *jsonschema.Schema {
	return t.schema
}

// Descriptor returns a copy of the tool descriptor
func (t *Tool) Descriptor() *mcp.ToolDescriptor {
	return t.descriptor.Clone()
}

// Call invokes the tool with the JSON arguments of the model.
//
// The failures of the invocation (unknown tool, invalid arguments,
// handler and server errors) are returned as text for the model,
// the failures of the session are returned as error.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	args := map[string]any{}
	if body := strings.TrimSpace(input); body != "" {
		if err := json.Unmarshal(llmutils.CleanJSON([]byte(body)), &args); err != nil {
			return "", errors.Wrapf(chatmodel.ErrFailedUnmarshalInput, "tool %s: %s", t.Name(), err.Error())
		}
	}

	res, err := t.invoker.CallTool(ctx, t.Name(), args)
	if err != nil {
		if IsSessionError(err) {
			return "", errors.WithMessagef(err, "tool %s", t.Name())
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"tool", t.Name(),
			"code", mcp.CodeOf(err),
			"input", slices.StringUpto(input, 64),
			"err", err.Error(),
		)
		return FailedPrefix + err.Error(), nil
	}

	text := res.Text()
	if res.IsError {
		return FailedPrefix + text, nil
	}
	return text, nil
}

// IsSessionError returns true if err ends the session with the server,
// or the request was cancelled or timed out
func IsSessionError(err error) bool {
	return errors.IsAny(err,
		mcp.ErrClosed,
		mcp.ErrCancelled,
		mcp.ErrConnection,
		mcp.ErrNotInitialized,
		context.Canceled,
		context.DeadlineExceeded,
	)
}
