package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
)

// Doer is the HTTP client used by the transport
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrClosed is returned when sending on a closed transport
var ErrClosed = errors.New("transport closed")

// codeTransportError is reported to the caller when a request could not be delivered
const codeTransportError = -32603

// methodCancelled is sent by the caller when it stops waiting for a response
const methodCancelled = "notifications/cancelled"

// ClientTransport posts each message to the endpoint URL.
// Requests are posted asynchronously, their responses are delivered to
// the message handler.
type ClientTransport struct {
	url    string
	client Doer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock           sync.RWMutex
	started        bool
	closed         bool
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	// inflight cancels the POST of a request, which closes its exchange on the server
	inflight map[transport.RequestId]context.CancelFunc
}

// NewClientTransport returns a transport posting to url, such as
// http://127.0.0.1:8080/mcp. A nil client uses http.DefaultClient.
func NewClientTransport(url string, client Doer) *ClientTransport {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ClientTransport{
		url:    url,
		client: client,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[transport.RequestId]context.CancelFunc),
	}
}

// Start implements Transport.Start
func (t *ClientTransport) Start(_ context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closed {
		return errors.WithStack(ErrClosed)
	}
	if t.started {
		return errors.New("HTTP transport already started")
	}
	t.started = true
	return nil
}

// Send implements Transport.Send
func (t *ClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.lock.RLock()
	closed := t.closed
	t.lock.RUnlock()
	if closed {
		return errors.WithStack(ErrClosed)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	if message.Type == transport.BaseMessageTypeJSONRPCNotificationType &&
		message.Method() == methodCancelled {
		// the POST carrying the request is the only channel to its handler
		t.abort(message.JsonRpcNotification.Params)
		return nil
	}

	if message.Type != transport.BaseMessageTypeJSONRPCRequestType {
		resp, err := t.post(ctx, body)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		return nil
	}

	id := message.MessageID()
	reqCtx, reqCancel := context.WithCancel(t.ctx)
	t.lock.Lock()
	t.inflight[id] = reqCancel
	t.lock.Unlock()

	// the caller waits for the response with its own timeout
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.lock.Lock()
			delete(t.inflight, id)
			t.lock.Unlock()
			reqCancel()
		}()
		t.roundTrip(reqCtx, id, body)
	}()
	return nil
}

// abort cancels the POST of the request named in cancelled notification params
func (t *ClientTransport) abort(params json.RawMessage) {
	var p struct {
		RequestId transport.RequestId `json:"requestId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		logger.KV(xlog.DEBUG, "reason", "cancelled_params", "err", err.Error())
		return
	}

	t.lock.RLock()
	cancel := t.inflight[p.RequestId]
	t.lock.RUnlock()
	if cancel != nil {
		logger.KV(xlog.DEBUG, "cancelled", p.RequestId)
		cancel()
	}
}

func (t *ClientTransport) roundTrip(ctx context.Context, id transport.RequestId, body []byte) {
	resp, err := t.post(ctx, body)
	if err != nil {
		// the caller has stopped waiting
		if ctx.Err() != nil {
			return
		}
		t.fail(id, err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMessageSize))
	if err != nil {
		t.fail(id, errors.Wrap(err, "failed to read response"))
		return
	}
	msg, err := transport.ParseMessage(data)
	if err != nil {
		t.fail(id, err)
		return
	}
	t.deliver(msg)
}

func (t *ClientTransport) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to post to %s", t.url)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, errors.Newf("failed to post to %s: %s: %s", t.url, resp.Status, bytes.TrimSpace(msg))
	}
	return resp, nil
}

// fail completes the pending request with a transport error
func (t *ClientTransport) fail(id transport.RequestId, err error) {
	if t.ctx.Err() != nil {
		return
	}
	logger.KV(xlog.DEBUG, "id", id, "err", err.Error())

	t.lock.RLock()
	errHandler := t.errorHandler
	t.lock.RUnlock()
	if errHandler != nil {
		errHandler(err)
	}

	t.deliver(transport.NewBaseMessageError(&transport.BaseJSONRPCError{
		Jsonrpc: transport.JSONRPCVersion,
		Id:      id,
		Error: transport.BaseJSONRPCErrorInner{
			Code:    codeTransportError,
			Message: err.Error(),
		},
	}))
}

func (t *ClientTransport) deliver(msg *transport.BaseJsonRpcMessage) {
	t.lock.RLock()
	handler := t.messageHandler
	t.lock.RUnlock()
	if handler != nil {
		handler(t.ctx, msg)
	}
}

// Close implements Transport.Close, requests in flight are abandoned
func (t *ClientTransport) Close() error {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil
	}
	t.closed = true
	handler := t.closeHandler
	t.lock.Unlock()

	t.cancel()
	t.wg.Wait()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *ClientTransport) SetCloseHandler(handler func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ClientTransport) SetErrorHandler(handler func(error)) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.messageHandler = handler
}

var _ transport.Transport = (*ClientTransport)(nil)
