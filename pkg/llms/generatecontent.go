package llms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role of the author of a message in the conversation
type Role string

// Roles of the conversation
const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// Message is one turn of the conversation.
// An AI turn may carry tool calls, and the following tool turn
// carries one ToolCallResponse per call.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// ContentPart is one of TextContent, ToolCall or ToolCallResponse
type ContentPart interface {
	isPart()
}

// TextContent is a text part of a message
type TextContent struct {
	Text string `json:"text"`
}

// TextPart returns the text part
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

func (TextContent) isPart() {}

func (tc TextContent) String() string {
	return tc.Text
}

// FunctionCall has the tool name and its JSON arguments, as produced by the model
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is the request of the model to invoke a tool
type ToolCall struct {
	// ID correlates the call with its ToolCallResponse
	ID string `json:"id"`
	// Type is always "function"
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (ToolCall) isPart() {}

// Clone returns a deep copy of the call
func (tc ToolCall) Clone() ToolCall {
	c := tc
	if tc.FunctionCall != nil {
		fc := *tc.FunctionCall
		c.FunctionCall = &fc
	}
	return c
}

func (tc ToolCall) String() string {
	var name, args string
	if tc.FunctionCall != nil {
		name, args = tc.FunctionCall.Name, tc.FunctionCall.Arguments
	}
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, name, args)
}

// ToolCallResponse is the output of the tool for the call with ToolCallID
type ToolCallResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

func (ToolCallResponse) isPart() {}

func (tc ToolCallResponse) String() string {
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tc.ToolCallID, tc.Name, len(tc.Content))
}

// ContentResponse is the result of GenerateContent
type ContentResponse struct {
	Choices []*ContentChoice
}

// ContentChoice is one candidate answer of the model,
// either a text or a set of tool calls.
type ContentChoice struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason"`

	// GenerationInfo has the provider details,
	// every provider reports InputTokens and OutputTokens
	GenerationInfo map[string]any `json:"generation_info"`

	ToolCalls []ToolCall `json:"tool_calls"`
}

// MessageFromParts returns the message of role with parts
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{Role: role, Parts: parts}
}

// MessageFromTextParts returns the message of role with a text part per string
func MessageFromTextParts(role Role, texts ...string) Message {
	parts := make([]ContentPart, len(texts))
	for i, s := range texts {
		parts[i] = TextPart(s)
	}
	return MessageFromParts(role, parts...)
}

// MessageFromToolCalls returns the message of role with copies of the calls
func MessageFromToolCalls(role Role, calls ...ToolCall) Message {
	parts := make([]ContentPart, len(calls))
	for i, c := range calls {
		parts[i] = c.Clone()
	}
	return MessageFromParts(role, parts...)
}

// MessageFromToolResponse returns the message of role with the tool response
func MessageFromToolResponse(role Role, response ToolCallResponse) Message {
	return MessageFromParts(role, response)
}

// GetContent returns the text of the message, one line per part.
// Tool calls and responses are rendered as JSON.
func (m Message) GetContent() string {
	var buf strings.Builder
	for _, p := range m.Parts {
		if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
			buf.WriteByte('\n')
		}
		switch part := p.(type) {
		case TextContent:
			buf.WriteString(part.Text)
		case ToolCall:
			writeJSONLine(&buf, "Tool Call: ", part)
		case ToolCallResponse:
			writeJSONLine(&buf, "Response: ", part)
		}
	}
	if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}
	return buf.String()
}

func writeJSONLine(buf *strings.Builder, prefix string, part ContentPart) {
	js, _ := json.Marshal(part)
	buf.WriteString(prefix)
	buf.Write(js)
	buf.WriteByte('\n')
}
