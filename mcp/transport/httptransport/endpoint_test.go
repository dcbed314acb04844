package httptransport_test

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mcp/transport/httptransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calculator(t *testing.T) *mcp.Registry {
	t.Helper()
	r := mcp.NewRegistry()
	require.NoError(t, r.Register(&mcp.ToolDescriptor{
		Name:        "Add",
		Description: "Adds two numbers together.",
		Parameters: []mcp.ParameterSpec{
			{Name: "a", Description: "The first number to add", Type: mcp.ParamNumber, Required: true},
			{Name: "b", Description: "The second number to add", Type: mcp.ParamNumber, Required: true},
		},
	}, func(_ context.Context, args mcp.Arguments) (*mcp.ToolResult, error) {
		return mcp.NewNumberResult(args.Float("a") + args.Float("b")), nil
	}))
	return r
}

func TestEndpoint_EndToEnd(t *testing.T) {
	ctx := context.Background()
	endpoint := httptransport.NewEndpoint("127.0.0.1:0")
	server := mcp.NewServer(mcp.Implementation{Name: "add", Version: "1.0"}, calculator(t), mcp.WithPageSize(1))
	require.NoError(t, server.Start(ctx, endpoint))
	defer server.Stop(ctx)

	assert.True(t, strings.HasSuffix(endpoint.URL(), httptransport.Path))

	client := mcp.NewClient(httptransport.NewClientTransport(endpoint.URL(), nil), mcp.WithRequestTimeout(5*time.Second))
	require.NoError(t, client.Open(ctx))
	defer client.Close()

	res, err := client.Initialize(ctx, mcp.Implementation{Name: "mcp-client", Version: "0.1.0"}, mcp.ClientCapabilities{})
	require.NoError(t, err)
	assert.Equal(t, "add", res.ServerInfo.Name)
	assert.Equal(t, mcp.ProtocolVersion, res.ProtocolVersion)

	require.NoError(t, client.Ping(ctx))

	tools, err := client.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "Add", tools[0].Name)

	out, err := client.CallTool(ctx, "Add", map[string]any{"a": 10, "b": 10})
	require.NoError(t, err)
	assert.Equal(t, "20", out.Text())

	_, err = client.CallTool(ctx, "Sub", map[string]any{"a": 10, "b": 10})
	assert.True(t, errors.Is(err, mcp.ErrNotFound))
}

func TestEndpoint_Rejects(t *testing.T) {
	endpoint := httptransport.NewEndpoint("127.0.0.1:0")
	require.NoError(t, endpoint.Listen(context.Background()))
	defer endpoint.Close()

	resp, err := http.Get(endpoint.URL())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(endpoint.URL(), "text/plain", strings.NewReader("{}"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp, err = http.Post(endpoint.URL(), "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	big := `{"jsonrpc":"2.0","method":"x","params":"` + strings.Repeat("a", httptransport.MaxMessageSize) + `"}`
	resp, err = http.Post(endpoint.URL(), "application/json", strings.NewReader(big))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestClientTransport_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx := context.Background()
	client := mcp.NewClient(httptransport.NewClientTransport("http://"+addr+httptransport.Path, nil), mcp.WithRequestTimeout(5*time.Second))
	require.NoError(t, client.Open(ctx))
	defer client.Close()

	_, err = client.Initialize(ctx, mcp.Implementation{Name: "mcp-client", Version: "0.1.0"}, mcp.ClientCapabilities{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to post to")
}

func TestClientTransport_Closed(t *testing.T) {
	tr := httptransport.NewClientTransport("http://127.0.0.1:1/mcp", nil)
	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Error(t, tr.Start(context.Background()))
}

func TestEndpoint_TimeoutCancelsHandler(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	cancelled := make(chan struct{})

	r := mcp.NewRegistry()
	require.NoError(t, r.Register(&mcp.ToolDescriptor{
		Name:        "Wait",
		Description: "Waits until cancelled.",
	}, func(ctx context.Context, _ mcp.Arguments) (*mcp.ToolResult, error) {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return mcp.NewTextResult("done"), nil
		}
	}))

	endpoint := httptransport.NewEndpoint("127.0.0.1:0")
	server := mcp.NewServer(mcp.Implementation{Name: "wait", Version: "1.0"}, r)
	require.NoError(t, server.Start(ctx, endpoint))
	defer server.Stop(ctx)

	client := mcp.NewClient(httptransport.NewClientTransport(endpoint.URL(), nil), mcp.WithRequestTimeout(200*time.Millisecond))
	require.NoError(t, client.Open(ctx))
	defer client.Close()

	_, err := client.Initialize(ctx, mcp.Implementation{Name: "mcp-client", Version: "0.1.0"}, mcp.ClientCapabilities{})
	require.NoError(t, err)

	_, err = client.CallTool(ctx, "Wait", nil)
	require.Error(t, err)

	select {
	case <-started:
	default:
		t.Fatal("handler was not called")
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}
