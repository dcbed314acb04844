package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// DefaultConnectTimeout bounds the wait for the `endpoint` event
const DefaultConnectTimeout = 10 * time.Second

// Doer is the HTTP client used by the transport
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures ClientTransport
type ClientOption func(*ClientTransport)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client Doer) ClientOption {
	return func(t *ClientTransport) {
		t.client = client
	}
}

// WithConnectTimeout sets the timeout for the stream to announce its endpoint
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(t *ClientTransport) {
		t.connectTimeout = timeout
	}
}

// ClientTransport is the client side of an SSE session
type ClientTransport struct {
	streamURL      string
	client         Doer
	connectTimeout time.Duration

	lock       sync.RWMutex
	messageURL string
	started    bool
	cancel     context.CancelFunc
	body       io.Closer

	closeOnce sync.Once
	done      chan struct{}

	hlock          sync.RWMutex
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

// NewClientTransport returns a transport for the stream URL,
// such as http://127.0.0.1:3001/sse
func NewClientTransport(streamURL string, opts ...ClientOption) *ClientTransport {
	t := &ClientTransport{
		streamURL:      streamURL,
		client:         http.DefaultClient,
		connectTimeout: DefaultConnectTimeout,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start implements Transport.Start: opens the stream and waits for the
// `endpoint` event
func (t *ClientTransport) Start(ctx context.Context) error {
	t.lock.Lock()
	if t.started {
		t.lock.Unlock()
		return errors.New("SSE transport already started")
	}
	t.started = true
	t.lock.Unlock()

	base, err := url.Parse(t.streamURL)
	if err != nil {
		return errors.Wrapf(err, "invalid URL: %s", t.streamURL)
	}

	// the stream outlives ctx, it is cancelled by Close
	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.streamURL, nil)
	if err != nil {
		cancel()
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "unable to connect to %s", t.streamURL)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		_ = resp.Body.Close()
		return errors.Newf("unable to connect to %s: %s", t.streamURL, resp.Status)
	}

	t.lock.Lock()
	t.cancel = cancel
	t.body = resp.Body
	t.lock.Unlock()

	endpoint := make(chan string, 1)
	go t.readLoop(resp.Body, endpoint)

	timer := time.NewTimer(t.connectTimeout)
	defer timer.Stop()

	select {
	case ep := <-endpoint:
		ref, err := url.Parse(ep)
		if err != nil {
			_ = t.Close()
			return errors.Wrapf(err, "invalid endpoint: %s", ep)
		}
		t.lock.Lock()
		t.messageURL = base.ResolveReference(ref).String()
		t.lock.Unlock()
		logger.ContextKV(ctx, xlog.DEBUG, "stream", t.streamURL, "endpoint", t.messageURL)
		return nil
	case <-t.done:
		return errors.Newf("stream closed before endpoint event: %s", t.streamURL)
	case <-timer.C:
		_ = t.Close()
		return errors.Newf("timeout waiting for endpoint event: %s", t.streamURL)
	case <-ctx.Done():
		_ = t.Close()
		return errors.WithStack(ctx.Err())
	}
}

// readLoop parses the event stream until it ends
func (t *ClientTransport) readLoop(body io.Reader, endpoint chan<- string) {
	defer func() {
		_ = t.Close()
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 || event != "" {
				t.dispatch(event, data.String(), endpoint)
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil && !t.isClosed() {
		t.reportError(errors.Wrap(err, "failed to read event stream"))
	}
}

func (t *ClientTransport) dispatch(event, data string, endpoint chan<- string) {
	switch event {
	case "endpoint":
		select {
		case endpoint <- data:
		default:
			logger.KV(xlog.WARNING, "reason", "duplicate_endpoint", "data", data)
		}
	case "message", "":
		msg, err := transport.ParseMessage([]byte(data))
		if err != nil {
			t.reportError(errors.WithMessagef(err, "invalid message: %s", slices.StringUpto(data, 64)))
			return
		}
		t.hlock.RLock()
		handler := t.messageHandler
		t.hlock.RUnlock()
		if handler != nil {
			handler(context.Background(), msg)
		}
	default:
		logger.KV(xlog.DEBUG, "reason", "unknown_event", "event", event)
	}
}

// Send implements Transport.Send: posts the message to the session endpoint
func (t *ClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if t.isClosed() {
		return errors.WithStack(ErrClosed)
	}
	t.lock.RLock()
	messageURL := t.messageURL
	t.lock.RUnlock()
	if messageURL == "" {
		return errors.WithStack(ErrNotConnected)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messageURL, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to post message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("failed to post message: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (t *ClientTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *ClientTransport) reportError(err error) {
	t.hlock.RLock()
	handler := t.errorHandler
	t.hlock.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// Close implements Transport.Close
func (t *ClientTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		t.lock.Lock()
		cancel, body := t.cancel, t.body
		t.lock.Unlock()
		if cancel != nil {
			cancel()
		}
		if body != nil {
			_ = body.Close()
		}

		t.hlock.RLock()
		handler := t.closeHandler
		t.hlock.RUnlock()
		if handler != nil {
			handler()
		}
	})
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *ClientTransport) SetCloseHandler(handler func()) {
	t.hlock.Lock()
	defer t.hlock.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ClientTransport) SetErrorHandler(handler func(error)) {
	t.hlock.Lock()
	defer t.hlock.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.hlock.Lock()
	defer t.hlock.Unlock()
	t.messageHandler = handler
}

var _ transport.Transport = (*ClientTransport)(nil)
