// Package transport defines the JSON-RPC 2.0 message envelope and the
// Transport abstraction used by the MCP protocol layer.
package transport

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// JSONRPCVersion is the only protocol version accepted on the wire.
const JSONRPCVersion = "2.0"

// RequestId is a JSON-RPC request identifier.
// Only numeric identifiers are supported.
type RequestId int64

// JsonRpcBody is the result returned by a request handler,
// it is marshalled into the `result` member of the response.
type JsonRpcBody any

// BaseJSONRPCRequest is a request that expects a response.
type BaseJSONRPCRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Id      RequestId       `json:"id"`
}

// BaseJSONRPCNotification is a one-way message.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BaseJSONRPCResponse is a successful response to a request.
type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      RequestId       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// BaseJSONRPCErrorInner is the `error` member of an error response.
type BaseJSONRPCErrorInner struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BaseJSONRPCError is an error response to a request.
type BaseJSONRPCError struct {
	Jsonrpc string                `json:"jsonrpc"`
	Id      RequestId             `json:"id"`
	Error   BaseJSONRPCErrorInner `json:"error"`
}

// BaseMessageType identifies which member of BaseJsonRpcMessage is set.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is a partially decoded JSON-RPC message.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

// NewBaseMessageRequest wraps a request
func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

// NewBaseMessageNotification wraps a notification
func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

// NewBaseMessageResponse wraps a response
func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

// NewBaseMessageError wraps an error response
func NewBaseMessageError(response *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: response,
	}
}

// MessageID returns the request ID the message carries or correlates to.
// Notifications have no ID and return 0.
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return 0
}

// Method returns the method name for requests and notifications.
func (m *BaseJsonRpcMessage) Method() string {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Method
	case BaseMessageTypeJSONRPCNotificationType:
		return m.JsonRpcNotification.Method
	}
	return ""
}

// MarshalJSON encodes the wrapped message.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Errorf("unknown message type: %q", m.Type)
}

// UnmarshalJSON decodes and classifies a message.
func (m *BaseJsonRpcMessage) UnmarshalJSON(data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		return err
	}
	*m = *msg
	return nil
}

type probe struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Id      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (p *probe) hasID() bool {
	return len(p.Id) > 0 && string(p.Id) != "null"
}

// ParseMessage decodes a single JSON-RPC message and classifies it
// as request, notification, response or error.
func ParseMessage(data []byte) (*BaseJsonRpcMessage, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to parse JSON-RPC message")
	}
	if p.Jsonrpc != JSONRPCVersion {
		return nil, errors.Errorf("unsupported JSON-RPC version: %q", p.Jsonrpc)
	}

	switch {
	case p.Method != "" && p.hasID():
		var req BaseJSONRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.Wrap(err, "invalid request")
		}
		return NewBaseMessageRequest(&req), nil
	case p.Method != "":
		var n BaseJSONRPCNotification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, errors.Wrap(err, "invalid notification")
		}
		return NewBaseMessageNotification(&n), nil
	case len(p.Error) > 0:
		var e BaseJSONRPCError
		if !p.hasID() {
			// errors for unparsable requests carry a null id
			p.Id = json.RawMessage("0")
		}
		if err := json.Unmarshal(p.Error, &e.Error); err != nil {
			return nil, errors.Wrap(err, "invalid error response")
		}
		if err := json.Unmarshal(p.Id, &e.Id); err != nil {
			return nil, errors.Wrap(err, "invalid error response id")
		}
		e.Jsonrpc = p.Jsonrpc
		return NewBaseMessageError(&e), nil
	case p.hasID():
		var r BaseJSONRPCResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "invalid response")
		}
		return NewBaseMessageResponse(&r), nil
	}
	return nil, errors.New("invalid JSON-RPC message")
}

// Transport is the minimal contract for an MCP transport.
// A transport delivers whole JSON-RPC messages in order,
// in both directions, over one connection.
type Transport interface {
	// Start begins processing messages on the transport, including any connection steps.
	Start(ctx context.Context) error

	// Send sends a JSON-RPC message (request, notification, response or error).
	Send(ctx context.Context, message *BaseJsonRpcMessage) error

	// Close closes the connection.
	Close() error

	// SetCloseHandler sets the callback for when the connection is closed for any reason.
	// This should be invoked when Close() is called as well.
	SetCloseHandler(handler func())

	// SetErrorHandler sets the callback for when an error occurs.
	// Errors are not necessarily fatal; they are used for reporting any kind of
	// exceptional condition out of band.
	SetErrorHandler(handler func(error))

	// SetMessageHandler sets the callback for when a message is received over the connection.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}

// Acceptor binds a listening endpoint and produces one server-side
// Transport per client connection.
type Acceptor interface {
	// Listen binds the endpoint. It must fail if the address is unavailable.
	Listen(ctx context.Context) error
	// Accept returns the channel of accepted connections,
	// the channel is closed when the acceptor is closed.
	Accept() <-chan Transport
	// Addr returns the bound address.
	Addr() string
	// Close stops accepting connections.
	Close() error
}
