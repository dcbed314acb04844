// Package protocol implements JSON-RPC framing on top of a pluggable transport:
// request/response correlation, notifications, progress, request
// cancellation and per-request timeouts.
//
// One Protocol instance serves one connection. Both sides of the
// connection may issue requests.
//
//	p := protocol.NewProtocol(nil)
//	p.SetRequestHandler("tools/list", handler)
//	if err := p.Connect(ctx, tr); err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	res, err := p.Request(ctx, "ping", nil, &protocol.RequestOptions{Timeout: 5 * time.Second})
package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/tidwall/sjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/mcp/internal", "protocol")

// DefaultRequestTimeoutMsec is used when a request does not specify a timeout.
const DefaultRequestTimeoutMsec = 60000

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError is the generic implementation-defined server error
	CodeServerError = -32000
	// CodeRequestCancelled is returned for requests cancelled before completion
	CodeRequestCancelled = -32800
)

// Notification methods handled by the protocol itself
const (
	MethodCancelled = "notifications/cancelled"
	MethodProgress  = "notifications/progress"
)

var (
	// ErrNotConnected is returned when the protocol has no transport
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionClosed is returned for requests pending or issued after the connection closed
	ErrConnectionClosed = errors.New("connection closed")
)

// Error is a JSON-RPC error.
// Handlers return it to control the code and data of the error response,
// and Request returns it when the remote side responded with an error.
type Error struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *Error) Error() string {
	return e.Message
}

// Progress represents a progress update
type Progress struct {
	Progress int64 `json:"progress"`
	Total    int64 `json:"total"`
}

// ProgressCallback is a callback for progress notifications
type ProgressCallback func(progress Progress)

// ProtocolOptions contains additional initialization options
type ProtocolOptions struct {
	// DefaultTimeout overrides DefaultRequestTimeoutMsec
	DefaultTimeout time.Duration
}

// RequestOptions contains options that can be given per request
type RequestOptions struct {
	// OnProgress is called when progress notifications are received from the remote end
	OnProgress ProgressCallback
	// Timeout specifies a timeout for this request.
	// If not specified, the protocol default is used.
	Timeout time.Duration
}

// RequestHandlerExtra contains extra data given to request handlers
type RequestHandlerExtra struct {
	// Context used to communicate if the request was cancelled from the sender's side
	Context context.Context
}

// RequestHandler handles one request and returns its result
type RequestHandler func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error)

// NotificationHandler handles one notification
type NotificationHandler func(notification *transport.BaseJSONRPCNotification) error

// Protocol implements MCP protocol framing on top of a pluggable transport,
// including features like request/response linking, notifications, and progress
type Protocol struct {
	transport transport.Transport
	options   ProtocolOptions

	// ctx is the parent of every handler context, cancelled on close
	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	requestMessageID transport.RequestId
	mu               sync.RWMutex

	requestHandlers      map[string]RequestHandler
	requestCancellers    map[transport.RequestId]context.CancelFunc
	notificationHandlers map[string]NotificationHandler
	responseHandlers     map[transport.RequestId]chan *responseEnvelope
	progressHandlers     map[transport.RequestId]ProgressCallback

	// OnClose is called when the connection is closed for any reason
	OnClose func()
	// OnError is called when an error occurs
	OnError func(error)
}

type responseEnvelope struct {
	response json.RawMessage
	err      error
}

// NewProtocol creates a new Protocol instance
func NewProtocol(options *ProtocolOptions) *Protocol {
	p := &Protocol{
		requestHandlers:      make(map[string]RequestHandler),
		requestCancellers:    make(map[transport.RequestId]context.CancelFunc),
		notificationHandlers: make(map[string]NotificationHandler),
		responseHandlers:     make(map[transport.RequestId]chan *responseEnvelope),
		progressHandlers:     make(map[transport.RequestId]ProgressCallback),
	}
	if options != nil {
		p.options = *options
	}
	if p.options.DefaultTimeout <= 0 {
		p.options.DefaultTimeout = time.Duration(DefaultRequestTimeoutMsec) * time.Millisecond
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.SetNotificationHandler(MethodCancelled, p.handleCancelledNotification)
	p.SetNotificationHandler(MethodProgress, p.handleProgressNotification)

	return p
}

// Connect attaches to the given transport, starts it, and starts listening for messages
func (p *Protocol) Connect(ctx context.Context, tr transport.Transport) error {
	p.mu.Lock()
	p.transport = tr
	p.mu.Unlock()

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.handleRequest(message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			p.handleResponse(message.MessageID(), message.JsonRpcResponse.Result, nil)
		case transport.BaseMessageTypeJSONRPCErrorType:
			inner := message.JsonRpcError.Error
			p.handleResponse(message.MessageID(), nil, &Error{
				Code:    inner.Code,
				Message: inner.Message,
				Data:    inner.Data,
			})
		}
	})

	return tr.Start(ctx)
}

// Closed returns true when the connection has been closed
func (p *Protocol) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()

	for _, cancel := range p.requestCancellers {
		cancel()
	}
	for id, ch := range p.responseHandlers {
		select {
		case ch <- &responseEnvelope{err: ErrConnectionClosed}:
		default:
		}
		delete(p.responseHandlers, id)
	}
	p.progressHandlers = make(map[transport.RequestId]ProgressCallback)
	onClose := p.OnClose
	p.mu.Unlock()

	logger.KV(xlog.DEBUG, "status", "closed")
	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	logger.KV(xlog.DEBUG, "err", err.Error())
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	logger.KV(xlog.DEBUG, "notification", notification.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	p.mu.RUnlock()

	if handler == nil {
		return
	}

	go func() {
		if err := handler(notification); err != nil {
			p.handleError(errors.Wrap(err, "notification handler error"))
		}
	}()
}

func (p *Protocol) handleRequest(request *transport.BaseJSONRPCRequest) {
	logger.KV(xlog.DEBUG,
		"method", request.Method,
		"id", request.Id,
	)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	handler := p.requestHandlers[request.Method]
	ctx, cancel := context.WithCancel(p.ctx)
	p.requestCancellers[request.Id] = cancel
	p.mu.Unlock()

	if handler == nil {
		handler = func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error) {
			return nil, &Error{
				Code:    CodeMethodNotFound,
				Message: "method not found: " + request.Method,
			}
		}
	}

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, request.Id)
			p.mu.Unlock()
			cancel()
		}()

		result, err := handler(ctx, request, RequestHandlerExtra{Context: ctx})
		if err != nil {
			logger.KV(xlog.DEBUG,
				"method", request.Method,
				"id", request.Id,
				"err", err.Error(),
			)
			p.sendErrorResponse(request.Id, err)
			return
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			p.sendErrorResponse(request.Id, errors.Wrap(err, "failed to marshal result"))
			return
		}
		response := &transport.BaseJSONRPCResponse{
			Jsonrpc: transport.JSONRPCVersion,
			Id:      request.Id,
			Result:  jsonResult,
		}

		// the handler context may be cancelled by now, the response must still go out
		if err := p.send(context.WithoutCancel(ctx), transport.NewBaseMessageResponse(response)); err != nil {
			p.handleError(errors.Wrap(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleProgressNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		Progress      int64               `json:"progress"`
		Total         int64               `json:"total"`
		ProgressToken transport.RequestId `json:"progressToken"`
	}

	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal progress params")
	}

	p.mu.RLock()
	handler := p.progressHandlers[params.ProgressToken]
	p.mu.RUnlock()

	if handler != nil {
		handler(Progress{
			Progress: params.Progress,
			Total:    params.Total,
		})
	}

	return nil
}

func (p *Protocol) handleCancelledNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		RequestId transport.RequestId `json:"requestId"`
		Reason    string              `json:"reason"`
	}

	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.requestCancellers[params.RequestId]
	p.mu.RUnlock()

	if cancel != nil {
		logger.KV(xlog.DEBUG, "cancelled", params.RequestId, "reason", params.Reason)
		cancel()
	}

	return nil
}

func (p *Protocol) handleResponse(id transport.RequestId, result json.RawMessage, rpcErr *Error) {
	p.mu.RLock()
	ch := p.responseHandlers[id]
	p.mu.RUnlock()

	if ch == nil {
		logger.KV(xlog.DEBUG, "reason", "no_handler", "id", id)
		return
	}

	env := &responseEnvelope{response: result}
	if rpcErr != nil {
		env.err = rpcErr
	}
	select {
	case ch <- env:
	default:
		logger.KV(xlog.WARNING, "reason", "duplicate_response", "id", id)
	}
}

// CancelInflight cancels the context of every request being handled.
// The handlers are expected to return promptly.
func (p *Protocol) CancelInflight() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cancel := range p.requestCancellers {
		cancel()
	}
}

// WaitInflight blocks until every request being handled has responded,
// or ctx is done.
func (p *Protocol) WaitInflight(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.RLock()
		n := len(p.requestCancellers)
		p.mu.RUnlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
}

// Close closes the connection
func (p *Protocol) Close() error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()

	var err error
	if tr != nil {
		err = tr.Close()
	}
	// transports invoke the close handler, this covers the ones that do not
	p.handleClose()
	return err
}

// Request sends a request and waits for a response.
// The result is the raw JSON of the response `result` member.
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.options.DefaultTimeout
	}

	p.mu.Lock()
	if p.transport == nil {
		p.mu.Unlock()
		return nil, errors.WithStack(ErrNotConnected)
	}
	if p.closed {
		p.mu.Unlock()
		return nil, errors.WithStack(ErrConnectionClosed)
	}
	id := p.requestMessageID
	p.requestMessageID++
	ch := make(chan *responseEnvelope, 1)
	p.responseHandlers[id] = ch
	if opts.OnProgress != nil {
		p.progressHandlers[id] = opts.OnProgress
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.responseHandlers, id)
		delete(p.progressHandlers, id)
		p.mu.Unlock()
	}()

	marshalledParams, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal params")
	}
	if opts.OnProgress != nil {
		if params == nil {
			marshalledParams = []byte(`{}`)
		}
		marshalledParams, err = sjson.SetBytes(marshalledParams, "_meta.progressToken", id)
		if err != nil {
			return nil, errors.Wrap(err, "params must be an object when using progress")
		}
	}
	if params == nil && opts.OnProgress == nil {
		marshalledParams = nil
	}

	request := &transport.BaseJSONRPCRequest{
		Jsonrpc: transport.JSONRPCVersion,
		Method:  method,
		Params:  marshalledParams,
		Id:      id,
	}

	if err := p.send(ctx, transport.NewBaseMessageRequest(request)); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			return nil, envelope.err
		}
		return envelope.response, nil
	case <-ctx.Done():
		p.sendCancelNotification(id, ctx.Err().Error())
		return nil, errors.WithStack(ctx.Err())
	case <-timer.C:
		p.sendCancelNotification(id, "request timeout")
		return nil, errors.Wrapf(context.DeadlineExceeded, "request timeout after %v", timeout)
	}
}

func (p *Protocol) send(ctx context.Context, msg *transport.BaseJsonRpcMessage) error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return errors.WithStack(ErrNotConnected)
	}
	return tr.Send(ctx, msg)
}

func (p *Protocol) sendCancelNotification(requestID transport.RequestId, reason string) {
	if p.Closed() {
		return
	}
	err := p.Notification(MethodCancelled, map[string]any{
		"requestId": requestID,
		"reason":    reason,
	})
	if err != nil {
		p.handleError(errors.Wrap(err, "failed to send cancel notification"))
	}
}

func (p *Protocol) sendErrorResponse(requestID transport.RequestId, err error) {
	inner := transport.BaseJSONRPCErrorInner{
		Code:    CodeServerError,
		Message: err.Error(),
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		inner.Code = rpcErr.Code
		inner.Message = rpcErr.Message
		inner.Data = rpcErr.Data
	}

	response := &transport.BaseJSONRPCError{
		Jsonrpc: transport.JSONRPCVersion,
		Id:      requestID,
		Error:   inner,
	}

	if err := p.send(context.Background(), transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.Wrap(err, "failed to send error response"))
	}
}

// Notification emits a notification, which is a one-way message that does not expect a response
func (p *Protocol) Notification(method string, params any) error {
	var marshalled json.RawMessage
	if params != nil {
		js, err := json.Marshal(params)
		if err != nil {
			return errors.Wrap(err, "failed to marshal notification params")
		}
		marshalled = js
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: transport.JSONRPCVersion,
		Method:  method,
		Params:  marshalled,
	}
	return p.send(context.Background(), transport.NewBaseMessageNotification(notification))
}

// SetRequestHandler registers a handler to invoke when this protocol object receives a request with the given method
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// SetNotificationHandler registers a handler to invoke when this protocol object receives a notification with the given method
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}
