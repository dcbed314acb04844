package mcp

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tcases := []struct {
		err error
		exp ErrorCode
	}{
		{errors.Wrap(ErrNotFound, "x"), CodeNotFound},
		{&InvalidArgumentError{Parameter: "b", Reason: "missing"}, CodeInvalidArgument},
		{&HandlerError{Tool: "t", Cause: errors.New("boom")}, CodeHandlerError},
		{errors.WithStack(ErrCancelled), CodeCancelled},
		{errors.WithStack(ErrClosed), CodeCancelled},
		{context.Canceled, CodeCancelled},
		{errors.Wrap(ErrInternal, "x"), CodeInternal},
		{errors.New("unexpected"), CodeInternal},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, CodeOf(tc.err), tc.err.Error())
	}
}

func TestRPCErrorRoundTrip(t *testing.T) {
	t.Run("NotFound", func(t *testing.T) {
		rpc := toRPCError(errors.Wrapf(ErrNotFound, "tool %q", "Mul"))
		assert.Equal(t, protocol.CodeInvalidParams, rpc.Code)
		assert.JSONEq(t, `{"errorCode":"NotFound"}`, string(rpc.Data))

		err := fromRPCError(rpc)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, `tool "Mul": tool not found`, err.Error())
	})

	t.Run("InvalidArgument", func(t *testing.T) {
		rpc := toRPCError(&InvalidArgumentError{Parameter: "b", Reason: "required parameter is missing"})
		assert.Equal(t, protocol.CodeInvalidParams, rpc.Code)
		assert.JSONEq(t, `{"errorCode":"InvalidArgument","parameter":"b","reason":"required parameter is missing"}`, string(rpc.Data))

		err := fromRPCError(rpc)
		var iae *InvalidArgumentError
		require.True(t, errors.As(err, &iae))
		assert.Equal(t, "b", iae.Parameter)
		assert.Equal(t, `invalid argument "b": required parameter is missing`, err.Error())
	})

	t.Run("HandlerError", func(t *testing.T) {
		rpc := toRPCError(&HandlerError{Tool: "Div", Cause: errors.New("division by zero")})
		assert.Equal(t, protocol.CodeServerError, rpc.Code)

		err := fromRPCError(rpc)
		var he *HandlerError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, "Div", he.Tool)
		assert.Equal(t, "division by zero", he.Cause.Error())
	})

	t.Run("Cancelled", func(t *testing.T) {
		rpc := toRPCError(errors.Wrap(ErrCancelled, "tool \"x\""))
		assert.Equal(t, protocol.CodeRequestCancelled, rpc.Code)
		assert.Equal(t, "request cancelled", rpc.Message)
		assert.True(t, errors.Is(fromRPCError(rpc), ErrCancelled))
	})

	t.Run("Internal", func(t *testing.T) {
		rpc := toRPCError(errors.Wrap(ErrInternal, "tool \"x\" panicked"))
		assert.Equal(t, protocol.CodeInternalError, rpc.Code)
		assert.True(t, errors.Is(fromRPCError(rpc), ErrInternal))
	})

	t.Run("Foreign", func(t *testing.T) {
		err := fromRPCError(&protocol.Error{Code: protocol.CodeMethodNotFound, Message: "method not found: x"})
		assert.True(t, errors.Is(err, ErrInternal))
		assert.Equal(t, "RPC error -32601: method not found: x: internal error", err.Error())

		err = fromRPCError(&protocol.Error{Code: protocol.CodeRequestCancelled, Message: "cancelled"})
		assert.True(t, errors.Is(err, ErrCancelled))

		err = fromRPCError(errors.WithStack(protocol.ErrConnectionClosed))
		assert.True(t, errors.Is(err, ErrCancelled))

		plain := errors.New("plain")
		assert.Equal(t, plain, fromRPCError(plain))
	})
}
