package protocol_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/internal/protocol"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/mcp/transport/localtransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, server *protocol.Protocol) *protocol.Protocol {
	t.Helper()
	ct, st := localtransport.NewPipe()
	ctx := context.Background()
	require.NoError(t, server.Connect(ctx, st))
	client := protocol.NewProtocol(nil)
	require.NoError(t, client.Connect(ctx, ct))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestRequestResponse(t *testing.T) {
	server := protocol.NewProtocol(nil)
	server.SetRequestHandler("echo", func(_ context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		var params map[string]any
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return params, nil
	})
	client := connect(t, server)

	res, err := client.Request(context.Background(), "echo", map[string]any{"text": "hello"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello"}`, string(res))
}

func TestMethodNotFound(t *testing.T) {
	client := connect(t, protocol.NewProtocol(nil))

	_, err := client.Request(context.Background(), "unknown", nil, nil)
	require.Error(t, err)

	var rpcErr *protocol.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, protocol.CodeMethodNotFound, rpcErr.Code)
	assert.Equal(t, "method not found: unknown", rpcErr.Message)
}

func TestHandlerError(t *testing.T) {
	server := protocol.NewProtocol(nil)
	server.SetRequestHandler("plain", func(context.Context, *transport.BaseJSONRPCRequest, protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		return nil, errors.New("plain failure")
	})
	server.SetRequestHandler("typed", func(context.Context, *transport.BaseJSONRPCRequest, protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		return nil, &protocol.Error{
			Code:    protocol.CodeInvalidParams,
			Message: "bad params",
			Data:    json.RawMessage(`{"parameter":"b"}`),
		}
	})
	client := connect(t, server)
	ctx := context.Background()

	_, err := client.Request(ctx, "plain", nil, nil)
	var rpcErr *protocol.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, protocol.CodeServerError, rpcErr.Code)
	assert.Equal(t, "plain failure", rpcErr.Message)

	_, err = client.Request(ctx, "typed", nil, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, protocol.CodeInvalidParams, rpcErr.Code)
	assert.JSONEq(t, `{"parameter":"b"}`, string(rpcErr.Data))
}

func TestRequestTimeoutSendsCancel(t *testing.T) {
	server := protocol.NewProtocol(nil)
	var cancelled atomic.Bool
	server.SetRequestHandler("slow", func(ctx context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	})
	client := connect(t, server)

	_, err := client.Request(context.Background(), "slow", nil, &protocol.RequestOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "request timeout after 50ms")

	assert.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond)
}

func TestRequestContextCancel(t *testing.T) {
	server := protocol.NewProtocol(nil)
	server.SetRequestHandler("slow", func(ctx context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client := connect(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := client.Request(ctx, "slow", nil, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCloseFailsPending(t *testing.T) {
	server := protocol.NewProtocol(nil)
	started := make(chan struct{})
	server.SetRequestHandler("hang", func(ctx context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client := connect(t, server)

	var closed atomic.Bool
	client.OnClose = func() { closed.Store(true) }

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), "hang", nil, nil)
		errCh <- err
	}()

	<-started
	require.NoError(t, client.Close())

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, protocol.ErrConnectionClosed))
	case <-time.After(time.Second):
		t.Fatal("pending request was not released")
	}
	assert.True(t, closed.Load())
	assert.True(t, client.Closed())

	_, err := client.Request(context.Background(), "hang", nil, nil)
	assert.True(t, errors.Is(err, protocol.ErrConnectionClosed))
}

func TestProgress(t *testing.T) {
	server := protocol.NewProtocol(nil)
	server.SetRequestHandler("work", func(_ context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		var params struct {
			Meta struct {
				ProgressToken int64 `json:"progressToken"`
			} `json:"_meta"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		err := server.Notification(protocol.MethodProgress, map[string]any{
			"progressToken": params.Meta.ProgressToken,
			"progress":      1,
			"total":         2,
		})
		if err != nil {
			return nil, err
		}
		// the progress notification is delivered before the response
		time.Sleep(20 * time.Millisecond)
		return map[string]any{"done": true}, nil
	})
	client := connect(t, server)

	var got atomic.Int64
	res, err := client.Request(context.Background(), "work", nil, &protocol.RequestOptions{
		OnProgress: func(p protocol.Progress) {
			got.Store(p.Total*10 + p.Progress)
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true}`, string(res))
	assert.Eventually(t, func() bool { return got.Load() == 21 }, time.Second, 10*time.Millisecond)
}

func TestCancelInflight(t *testing.T) {
	server := protocol.NewProtocol(nil)
	started := make(chan struct{})
	server.SetRequestHandler("hang", func(ctx context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		close(started)
		<-ctx.Done()
		return nil, &protocol.Error{Code: protocol.CodeRequestCancelled, Message: "cancelled"}
	})
	client := connect(t, server)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), "hang", nil, nil)
		errCh <- err
	}()

	<-started
	server.CancelInflight()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.WaitInflight(ctx))

	err := <-errCh
	var rpcErr *protocol.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, protocol.CodeRequestCancelled, rpcErr.Code)
}

func TestNotConnected(t *testing.T) {
	p := protocol.NewProtocol(nil)
	_, err := p.Request(context.Background(), "ping", nil, nil)
	assert.True(t, errors.Is(err, protocol.ErrNotConnected))
	assert.True(t, errors.Is(p.Notification("x", nil), protocol.ErrNotConnected))
}
