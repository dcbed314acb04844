package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/internal/protocol"
)

// ErrorCode is the stable code of an invocation error on the wire
type ErrorCode string

// Error codes
const (
	CodeNotFound        ErrorCode = "NotFound"
	CodeInvalidArgument ErrorCode = "InvalidArgument"
	CodeHandlerError    ErrorCode = "HandlerError"
	CodeInternal        ErrorCode = "Internal"
	CodeCancelled       ErrorCode = "Cancelled"
)

// Session and server state errors
var (
	ErrConnection     = errors.New("connection error")
	ErrBind           = errors.New("bind error")
	ErrNotInitialized = errors.New("session is not initialized")
	ErrAlreadyOpen    = errors.New("session is already open")
	ErrAlreadyStarted = errors.New("server is already started")
	ErrClosed         = errors.New("session is closed")
)

// Registry errors
var (
	ErrDuplicateTool     = errors.New("tool is already registered")
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
	ErrRegistryFrozen    = errors.New("registry is frozen")
)

// Invocation errors
var (
	ErrNotFound        = errors.New("tool not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrHandler         = errors.New("tool handler failed")
	ErrCancelled       = errors.New("request cancelled")
	ErrInternal        = errors.New("internal error")
)

// InvalidArgumentError reports the first argument that failed validation
type InvalidArgumentError struct {
	Parameter string
	Reason    string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Parameter, e.Reason)
}

// Is matches ErrInvalidArgument
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// HandlerError wraps the failure of a tool handler
type HandlerError struct {
	Tool  string
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Cause.Error())
}

// Unwrap returns the handler failure
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// Is matches ErrHandler
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandler
}

// CodeOf returns the wire code for an invocation error
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrHandler):
		return CodeHandlerError
	case errors.Is(err, ErrCancelled),
		errors.Is(err, ErrClosed),
		errors.Is(err, context.Canceled):
		return CodeCancelled
	}
	return CodeInternal
}

// errorData is the `data` member of a JSON-RPC error produced by the server
type errorData struct {
	ErrorCode ErrorCode `json:"errorCode"`
	Parameter string    `json:"parameter,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Tool      string    `json:"tool,omitempty"`
}

// toRPCError converts an invocation error to its wire form
func toRPCError(err error) *protocol.Error {
	code := CodeOf(err)
	data := errorData{
		ErrorCode: code,
	}
	rpc := &protocol.Error{
		Message: err.Error(),
	}

	switch code {
	case CodeNotFound:
		rpc.Code = protocol.CodeInvalidParams
	case CodeInvalidArgument:
		rpc.Code = protocol.CodeInvalidParams
		var iae *InvalidArgumentError
		if errors.As(err, &iae) {
			data.Parameter = iae.Parameter
			data.Reason = iae.Reason
		}
	case CodeHandlerError:
		rpc.Code = protocol.CodeServerError
		var he *HandlerError
		if errors.As(err, &he) {
			data.Tool = he.Tool
			data.Reason = he.Cause.Error()
		}
	case CodeCancelled:
		rpc.Code = protocol.CodeRequestCancelled
		rpc.Message = ErrCancelled.Error()
	default:
		rpc.Code = protocol.CodeInternalError
	}

	rpc.Data, _ = json.Marshal(data)
	return rpc
}

// fromRPCError maps an error returned by the protocol layer back to
// the package errors, so that callers can match them with errors.Is
func fromRPCError(err error) error {
	if errors.Is(err, protocol.ErrConnectionClosed) {
		return errors.Wrap(ErrCancelled, "connection closed")
	}

	var rpc *protocol.Error
	if !errors.As(err, &rpc) {
		return err
	}

	var data errorData
	if len(rpc.Data) > 0 {
		_ = json.Unmarshal(rpc.Data, &data)
	}

	switch data.ErrorCode {
	case CodeNotFound:
		return errors.Mark(errors.New(rpc.Message), ErrNotFound)
	case CodeInvalidArgument:
		return &InvalidArgumentError{
			Parameter: data.Parameter,
			Reason:    data.Reason,
		}
	case CodeHandlerError:
		return &HandlerError{
			Tool:  data.Tool,
			Cause: errors.New(data.Reason),
		}
	case CodeCancelled:
		return errors.WithStack(ErrCancelled)
	case CodeInternal:
		return errors.Mark(errors.New(rpc.Message), ErrInternal)
	}

	if rpc.Code == protocol.CodeRequestCancelled {
		return errors.WithStack(ErrCancelled)
	}
	return errors.Wrapf(ErrInternal, "RPC error %d: %s", rpc.Code, rpc.Message)
}
