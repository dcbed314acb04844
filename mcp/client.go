package mcp

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/internal/protocol"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// DefaultRequestTimeout bounds every client request unless changed with WithRequestTimeout
const DefaultRequestTimeout = time.Duration(protocol.DefaultRequestTimeoutMsec) * time.Millisecond

// ClientState is the lifecycle state of a client session
type ClientState int32

// Client states
const (
	ClientUnopened ClientState = iota
	ClientOpen
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientOpen:
		return "open"
	case ClientClosed:
		return "closed"
	}
	return "unopened"
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithRequestTimeout sets the timeout of each request.
// On timeout the server is notified with `notifications/cancelled`.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// ToolFilter restricts the tools returned by ListTools
type ToolFilter struct {
	// Prefix of the tool name
	Prefix string
	// Pattern is a regular expression the tool name must match
	Pattern string
}

func (f *ToolFilter) matcher() (func(string) bool, error) {
	if f == nil {
		return func(string) bool { return true }, nil
	}
	var re *regexp.Regexp
	if f.Pattern != "" {
		var err error
		if re, err = regexp.Compile(f.Pattern); err != nil {
			return nil, &InvalidArgumentError{
				Parameter: "pattern",
				Reason:    err.Error(),
			}
		}
	}
	return func(name string) bool {
		if !strings.HasPrefix(name, f.Prefix) {
			return false
		}
		return re == nil || re.MatchString(name)
	}, nil
}

// Client is a session with an MCP server.
// Client is safe for concurrent use once initialized.
type Client struct {
	transport transport.Transport
	timeout   time.Duration

	lock        sync.Mutex
	state       ClientState
	protocol    *protocol.Protocol
	initialized *InitializeResult
}

// NewClient returns an unopened client over the transport
func NewClient(tr transport.Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: tr,
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the session state
func (c *Client) State() ClientState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// ServerInfo returns the result of Initialize, or nil
func (c *Client) ServerInfo() *InitializeResult {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.initialized
}

// Open starts the transport
func (c *Client) Open(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch c.state {
	case ClientOpen:
		return errors.WithStack(ErrAlreadyOpen)
	case ClientClosed:
		return errors.WithStack(ErrClosed)
	}

	p := protocol.NewProtocol(&protocol.ProtocolOptions{
		DefaultTimeout: c.timeout,
	})
	p.OnError = func(err error) {
		logger.KV(xlog.WARNING, "reason", "connection", "err", err.Error())
	}
	if err := p.Connect(ctx, c.transport); err != nil {
		_ = p.Close()
		return errors.Mark(errors.Wrap(err, "unable to open session"), ErrConnection)
	}

	c.protocol = p
	c.state = ClientOpen
	return nil
}

// Initialize negotiates the session with the server: sends `initialize`,
// then the `notifications/initialized` notification.
func (c *Client) Initialize(ctx context.Context, info Implementation, capabilities ClientCapabilities) (*InitializeResult, error) {
	req := &InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    capabilities,
		ClientInfo:      info,
	}
	raw, err := c.request(ctx, MethodInitialize, req, false)
	if err != nil {
		return nil, err
	}

	var res InitializeResult
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrapf(ErrInternal, "invalid initialize result: %s", err.Error())
	}
	if res.ProtocolVersion != ProtocolVersion {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "protocol_version",
			"server", res.ProtocolVersion,
			"client", ProtocolVersion,
		)
	}

	p, err := c.session(false)
	if err != nil {
		return nil, err
	}
	if err = p.Notification(MethodInitialized, nil); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to send initialized"), ErrConnection)
	}

	c.lock.Lock()
	c.initialized = &res
	c.lock.Unlock()

	logger.ContextKV(ctx, xlog.INFO,
		"server", res.ServerInfo.Name,
		"version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)
	return &res, nil
}

// Ping checks the server is responsive
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, MethodPing, nil, false)
	return err
}

// ListTools returns descriptors of the server tools in registration order,
// following all pages. A nil filter returns all tools.
func (c *Client) ListTools(ctx context.Context, filter *ToolFilter) ([]*ToolDescriptor, error) {
	match, err := filter.matcher()
	if err != nil {
		return nil, err
	}

	var list []*ToolDescriptor
	seen := make(map[string]bool)
	req := &ListToolsRequest{}
	for {
		raw, err := c.request(ctx, MethodToolsList, req, true)
		if err != nil {
			return nil, err
		}

		var res ListToolsResult
		if err = json.Unmarshal(raw, &res); err != nil {
			return nil, errors.Wrapf(ErrInternal, "invalid tools/list result: %s", err.Error())
		}
		for _, info := range res.Tools {
			if info != nil && match(info.Name) {
				list = append(list, info.Descriptor())
			}
		}

		if res.NextCursor == nil || *res.NextCursor == "" {
			break
		}
		if seen[*res.NextCursor] {
			return nil, errors.Wrapf(ErrInternal, "repeated cursor %q", *res.NextCursor)
		}
		seen[*res.NextCursor] = true
		req = &ListToolsRequest{Cursor: res.NextCursor}
	}
	return list, nil
}

// CallTool invokes the named tool.
// Server side failures are returned as ErrNotFound, *InvalidArgumentError,
// *HandlerError, ErrInternal or ErrCancelled.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	raw, err := c.request(ctx, MethodToolsCall, &InvocationRequest{
		Name:      name,
		Arguments: args,
	}, true)
	if err != nil {
		return nil, err
	}

	var res ToolResult
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrapf(ErrInternal, "invalid tools/call result: %s", err.Error())
	}
	return &res, nil
}

// Close ends the session. Outstanding requests fail with ErrCancelled,
// later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.lock.Lock()
	if c.state == ClientClosed {
		c.lock.Unlock()
		return nil
	}
	c.state = ClientClosed
	p := c.protocol
	c.protocol = nil
	c.lock.Unlock()

	if p == nil {
		return nil
	}
	if err := p.Close(); err != nil {
		return errors.WithMessage(err, "failed to close transport")
	}
	return nil
}

func (c *Client) session(requireInit bool) (*protocol.Protocol, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch c.state {
	case ClientUnopened:
		return nil, errors.Wrap(ErrNotInitialized, "session is not open")
	case ClientClosed:
		return nil, errors.WithStack(ErrClosed)
	}
	if requireInit && c.initialized == nil {
		return nil, errors.WithStack(ErrNotInitialized)
	}
	if c.protocol.Closed() {
		return nil, errors.Wrap(ErrConnection, "connection closed by server")
	}
	return c.protocol, nil
}

func (c *Client) request(ctx context.Context, method string, params any, requireInit bool) (json.RawMessage, error) {
	p, err := c.session(requireInit)
	if err != nil {
		return nil, err
	}

	raw, err := p.Request(ctx, method, params, &protocol.RequestOptions{
		Timeout: c.timeout,
	})
	if err != nil {
		err = fromRPCError(err)
		if errors.Is(err, context.Canceled) {
			err = errors.Mark(err, ErrCancelled)
		}
		metricskey.StatsClientCalls.IncrCounter(1, method, string(CodeOf(err)))
		logger.ContextKV(ctx, xlog.DEBUG, "method", method, "err", err.Error())
		return nil, err
	}
	metricskey.StatsClientCalls.IncrCounter(1, method, "ok")
	return raw, nil
}
