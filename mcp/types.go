package mcp

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

// ProtocolVersion is the MCP revision spoken by this package
const ProtocolVersion = "2024-11-05"

// MCP methods
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ParamType is the declared type of a tool parameter
type ParamType string

// Supported parameter types, named as in JSON Schema
const (
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// ParameterSpec describes one tool parameter
type ParameterSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Type        ParamType `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
}

// ToolDescriptor is the static metadata of a tool
type ToolDescriptor struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Parameters  []ParameterSpec `json:"parameters" yaml:"parameters"`
}

// Clone returns a deep copy of the descriptor
func (d *ToolDescriptor) Clone() *ToolDescriptor {
	c := *d
	c.Parameters = append([]ParameterSpec(nil), d.Parameters...)
	return &c
}

// Parameter returns the parameter spec by name
func (d *ToolDescriptor) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// ContentType is the type of a result content block
type ContentType string

// Content types
const (
	ContentTypeText ContentType = "text"
	ContentTypeJSON ContentType = "json"
)

// Content is one block of a tool result
type Content struct {
	Type ContentType     `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewTextContent returns a text block
func NewTextContent(text string) *Content {
	return &Content{
		Type: ContentTypeText,
		Text: text,
	}
}

// NewJSONContent returns a structured block
func NewJSONContent(v any) (*Content, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal content")
	}
	return &Content{
		Type: ContentTypeJSON,
		Data: js,
	}, nil
}

// ToolResult is the result of a tool invocation
type ToolResult struct {
	Content []*Content `json:"content"`
	IsError bool       `json:"isError,omitempty"`
}

// NewToolResult returns a result with the given content
func NewToolResult(content ...*Content) *ToolResult {
	return &ToolResult{
		Content: content,
	}
}

// NewTextResult returns a result with a single text block
func NewTextResult(text string) *ToolResult {
	return NewToolResult(NewTextContent(text))
}

// NewNumberResult returns a result with a single text block holding
// the shortest decimal representation of v
func NewNumberResult(v float64) *ToolResult {
	return NewTextResult(strconv.FormatFloat(v, 'f', -1, 64))
}

// Text returns the text of the result: text blocks as is,
// structured blocks as JSON, joined by new lines.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c == nil {
			continue
		}
		switch c.Type {
		case ContentTypeText:
			parts = append(parts, c.Text)
		default:
			parts = append(parts, string(c.Data))
		}
	}
	return strings.Join(parts, "\n")
}

// InvocationRequest is the `tools/call` request
type InvocationRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Implementation describes the name and version of an MCP implementation
type Implementation struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// ToolsCapability is present if the server offers tools
type ToolsCapability struct {
	// ListChanged is true if the server notifies about tool list changes
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities are the features a server supports
type ServerCapabilities struct {
	Experimental map[string]any   `json:"experimental,omitempty"`
	Tools        *ToolsCapability `json:"tools,omitempty"`
}

// ClientCapabilities are the features a client supports
type ClientCapabilities struct {
	Experimental map[string]any `json:"experimental,omitempty"`
	Sampling     map[string]any `json:"sampling,omitempty"`
}

// InitializeRequest is sent by the client to negotiate capabilities
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server response to initialize
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ListToolsRequest is the `tools/list` request
type ListToolsRequest struct {
	Cursor *string `json:"cursor,omitempty"`
}

// ToolInfo is the wire form of a ToolDescriptor
type ToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// ListToolsResult is the `tools/list` response
type ListToolsResult struct {
	Tools      []*ToolInfo `json:"tools"`
	NextCursor *string     `json:"nextCursor,omitempty"`
}
