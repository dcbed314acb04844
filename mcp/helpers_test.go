package mcp_test

import (
	"context"
	"testing"

	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mcp/transport/localtransport"
	"github.com/stretchr/testify/require"
)

func addDescriptor() *mcp.ToolDescriptor {
	return &mcp.ToolDescriptor{
		Name:        "Add",
		Description: "Adds two numbers together.",
		Parameters: []mcp.ParameterSpec{
			{Name: "a", Description: "The first number to add", Type: mcp.ParamNumber, Required: true},
			{Name: "b", Description: "The second number to add", Type: mcp.ParamNumber, Required: true},
		},
	}
}

func subDescriptor() *mcp.ToolDescriptor {
	return &mcp.ToolDescriptor{
		Name:        "Sub",
		Description: "Subtract 2nd number from 1st",
		Parameters: []mcp.ParameterSpec{
			{Name: "a", Description: "The first number", Type: mcp.ParamNumber, Required: true},
			{Name: "b", Description: "The second number", Type: mcp.ParamNumber, Required: true},
		},
	}
}

func newCalculatorRegistry(t testing.TB) *mcp.Registry {
	t.Helper()
	r := mcp.NewRegistry()
	require.NoError(t, r.Register(addDescriptor(), func(_ context.Context, args mcp.Arguments) (*mcp.ToolResult, error) {
		return mcp.NewNumberResult(args.Float("a") + args.Float("b")), nil
	}))
	require.NoError(t, r.Register(subDescriptor(), func(_ context.Context, args mcp.Arguments) (*mcp.ToolResult, error) {
		return mcp.NewNumberResult(args.Float("a") - args.Float("b")), nil
	}))
	return r
}

// startServer starts the server on a local acceptor and returns it
func startServer(t *testing.T, server *mcp.Server) *localtransport.Acceptor {
	t.Helper()
	acceptor := localtransport.NewAcceptor(t.Name())
	require.NoError(t, server.Start(context.Background(), acceptor))
	t.Cleanup(func() {
		_ = server.Stop(context.Background())
	})
	return acceptor
}

// connectClient dials the acceptor and returns an initialized client
func connectClient(t *testing.T, acceptor *localtransport.Acceptor, opts ...mcp.ClientOption) *mcp.Client {
	t.Helper()
	ctx := context.Background()
	pipe, err := acceptor.Dial(ctx)
	require.NoError(t, err)

	client := mcp.NewClient(pipe, opts...)
	require.NoError(t, client.Open(ctx))
	_, err = client.Initialize(ctx, mcp.Implementation{Name: "mcp-client", Version: "0.1.0"}, mcp.ClientCapabilities{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
