// Package mcp implements a Model Context Protocol tool server and client.
//
// A Server exposes the tools of a Registry to remote clients over any
// transport.Acceptor; a Client discovers and invokes them over a
// transport.Transport.
//
//	registry := mcp.NewRegistry()
//	_ = registry.Register(desc, handler)
//
//	server := mcp.NewServer(mcp.Implementation{Name: "add", Version: "1.0"}, registry)
//	if err := server.Start(ctx, sse.NewEndpoint("127.0.0.1:3001")); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/internal/protocol"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "mcp")

// ServerState is the lifecycle state of a Server
type ServerState int32

// Server states
const (
	StateStopped ServerState = iota
	StateStarting
	StateListening
)

func (s ServerState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	}
	return "stopped"
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithPageSize sets the number of tools returned per `tools/list` page,
// 0 returns all tools in one page
func WithPageSize(n int) ServerOption {
	return func(s *Server) {
		s.pageSize = n
	}
}

// WithInstructions sets the instructions returned on initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// Server exposes the tools of a registry to MCP clients
type Server struct {
	info         Implementation
	registry     *Registry
	executor     *Executor
	pageSize     int
	instructions string

	state atomic.Int32

	// lock serializes state transitions and guards the fields below
	lock     sync.Mutex
	acceptor transport.Acceptor
	conns    map[*protocol.Protocol]struct{}
	wg       sync.WaitGroup
}

// NewServer returns a stopped server for the registry
func NewServer(info Implementation, registry *Registry, opts ...ServerOption) *Server {
	s := &Server{
		info:     info,
		registry: registry,
		executor: NewExecutor(registry),
		conns:    make(map[*protocol.Protocol]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state of the server
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// Info returns the server identity
func (s *Server) Info() Implementation {
	return s.info
}

// Start freezes the registry, binds the acceptor and serves every accepted
// connection until Stop is called.
func (s *Server) Start(ctx context.Context, acceptor transport.Acceptor) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if state := s.State(); state != StateStopped {
		return errors.Wrapf(ErrAlreadyStarted, "state: %s", state)
	}
	s.state.Store(int32(StateStarting))

	s.registry.Freeze()
	if err := acceptor.Listen(ctx); err != nil {
		s.state.Store(int32(StateStopped))
		logger.KV(xlog.ERROR, "addr", acceptor.Addr(), "err", err.Error())
		return errors.Mark(errors.Wrapf(err, "unable to bind %s", acceptor.Addr()), ErrBind)
	}

	s.acceptor = acceptor
	s.state.Store(int32(StateListening))

	logger.KV(xlog.INFO,
		"status", "listening",
		"addr", acceptor.Addr(),
		"server", s.info.Name,
		"tools", s.registry.Len(),
		"fingerprint", s.registry.Fingerprint(),
	)

	s.wg.Add(1)
	go s.acceptLoop(acceptor)
	return nil
}

func (s *Server) acceptLoop(acceptor transport.Acceptor) {
	defer s.wg.Done()
	for tr := range acceptor.Accept() {
		metricskey.StatsServerConnections.IncrCounter(1, acceptor.Addr())
		if err := s.serve(tr); err != nil {
			logger.KV(xlog.ERROR, "reason", "serve", "err", err.Error())
			_ = tr.Close()
		}
	}
}

func (s *Server) serve(tr transport.Transport) error {
	p := protocol.NewProtocol(nil)
	p.SetRequestHandler(MethodInitialize, s.handler(MethodInitialize, s.handleInitialize))
	p.SetRequestHandler(MethodPing, s.handler(MethodPing, s.handlePing))
	p.SetRequestHandler(MethodToolsList, s.handler(MethodToolsList, s.handleListTools))
	p.SetRequestHandler(MethodToolsCall, s.handler(MethodToolsCall, s.handleCallTool))
	p.SetNotificationHandler(MethodInitialized, func(*transport.BaseJSONRPCNotification) error {
		logger.KV(xlog.DEBUG, "status", "initialized")
		return nil
	})
	p.OnError = func(err error) {
		logger.KV(xlog.WARNING, "reason", "connection", "err", err.Error())
	}
	p.OnClose = func() {
		s.lock.Lock()
		delete(s.conns, p)
		s.lock.Unlock()
	}

	s.lock.Lock()
	if s.State() != StateListening {
		s.lock.Unlock()
		return errors.New("server is not listening")
	}
	s.conns[p] = struct{}{}
	s.lock.Unlock()

	if err := p.Connect(context.Background(), tr); err != nil {
		s.lock.Lock()
		delete(s.conns, p)
		s.lock.Unlock()
		return errors.WithMessage(err, "failed to start connection")
	}
	return nil
}

// Stop stops accepting connections, cancels in-flight invocations and
// closes all connections. In-flight invocations are answered with
// Cancelled before their connection is closed, or until ctx is done.
// Stop on a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.lock.Lock()
	if s.State() == StateStopped {
		s.lock.Unlock()
		return nil
	}
	s.state.Store(int32(StateStopped))
	acceptor := s.acceptor
	s.acceptor = nil
	conns := make([]*protocol.Protocol, 0, len(s.conns))
	for p := range s.conns {
		conns = append(conns, p)
	}
	s.lock.Unlock()

	for _, p := range conns {
		p.CancelInflight()
	}
	for _, p := range conns {
		if werr := p.WaitInflight(ctx); werr != nil {
			logger.KV(xlog.WARNING, "reason", "wait_inflight", "err", werr.Error())
		}
		_ = p.Close()
	}

	// connections accepted from here on are rejected by serve
	err := acceptor.Close()
	s.wg.Wait()

	logger.KV(xlog.INFO, "status", "stopped", "addr", acceptor.Addr(), "connections", len(conns))
	if err != nil {
		return errors.WithMessage(err, "failed to close acceptor")
	}
	return nil
}

type methodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// handler wraps a method handler with the state check, metrics and
// error mapping
func (s *Server) handler(method string, h methodHandler) protocol.RequestHandler {
	return func(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		var res any
		var err error
		if s.State() != StateListening {
			err = errors.Wrap(ErrCancelled, "server is stopped")
		} else {
			res, err = h(ctx, req.Params)
		}

		if err != nil {
			var rpcErr *protocol.Error
			if !errors.As(err, &rpcErr) {
				rpcErr = toRPCError(err)
			}
			metricskey.StatsServerRequests.IncrCounter(1, method, strconv.Itoa(rpcErr.Code))
			return nil, rpcErr
		}
		metricskey.StatsServerRequests.IncrCounter(1, method, "ok")
		return res, nil
	}
}

func invalidParams(err error) error {
	return &protocol.Error{
		Code:    protocol.CodeInvalidParams,
		Message: "invalid params: " + err.Error(),
	}
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var req InitializeRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, invalidParams(err)
		}
	}

	logger.ContextKV(ctx, xlog.INFO,
		"client", req.ClientInfo.Name,
		"client_version", req.ClientInfo.Version,
		"protocol", req.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{
				ListChanged: false,
			},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(context.Context, json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *Server) handleListTools(_ context.Context, params json.RawMessage) (any, error) {
	var req ListToolsRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, invalidParams(err)
		}
	}

	offset := 0
	if req.Cursor != nil && *req.Cursor != "" {
		var err error
		if offset, err = decodeCursor(*req.Cursor); err != nil {
			return nil, invalidParams(err)
		}
	}

	list := s.registry.List()
	if offset > len(list) {
		offset = len(list)
	}
	end := len(list)
	if s.pageSize > 0 && offset+s.pageSize < end {
		end = offset + s.pageSize
	}

	res := &ListToolsResult{
		Tools: make([]*ToolInfo, 0, end-offset),
	}
	for _, d := range list[offset:end] {
		res.Tools = append(res.Tools, ToolInfoFromDescriptor(d))
	}
	if end < len(list) {
		next := encodeCursor(end)
		res.NextCursor = &next
	}
	return res, nil
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (any, error) {
	var req InvocationRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, invalidParams(err)
	}
	return s.executor.Invoke(ctx, &req)
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, errors.Newf("invalid cursor %q", cursor)
	}
	offset, err := strconv.Atoi(string(b))
	if err != nil || offset < 0 {
		return 0, errors.Newf("invalid cursor %q", cursor)
	}
	return offset, nil
}
