// Package sse implements the MCP HTTP+SSE transport.
//
// The client opens a `GET /sse` stream; the server replies with an
// `endpoint` event carrying the URL the client must POST its messages to,
// then sends its own messages as `message` events on the stream.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/mcp/transport", "sse")

// MaxMessageSize is the limit of a message posted by the client
const MaxMessageSize = 4 * 1024 * 1024

// ErrNotConnected is returned when sending on a transport that is not started
var ErrNotConnected = errors.New("not connected")

// ErrClosed is returned when sending on a closed transport
var ErrClosed = errors.New("transport closed")

// ServerTransport is the server side of one SSE session
type ServerTransport struct {
	endpoint  string
	sessionID string
	w         http.ResponseWriter
	flusher   http.Flusher

	// wlock serializes writes to the stream
	wlock   sync.Mutex
	started bool
	closed  bool

	done      chan struct{}
	closeOnce sync.Once

	hlock          sync.RWMutex
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

// NewServerTransport returns a transport streaming to w.
// Messages from the client are expected on endpoint?session=<SessionID>.
func NewServerTransport(endpoint string, w http.ResponseWriter) (*ServerTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &ServerTransport{
		endpoint:  endpoint,
		sessionID: uuid.New().String(),
		w:         w,
		flusher:   flusher,
		done:      make(chan struct{}),
	}, nil
}

// SessionID returns the session identifier
func (t *ServerTransport) SessionID() string {
	return t.sessionID
}

// Done is closed when the transport is closed
func (t *ServerTransport) Done() <-chan struct{} {
	return t.done
}

// Start implements Transport.Start: writes the stream headers and the
// `endpoint` event
func (t *ServerTransport) Start(_ context.Context) error {
	t.wlock.Lock()
	defer t.wlock.Unlock()

	if t.closed {
		return errors.WithStack(ErrClosed)
	}
	if t.started {
		return errors.New("SSE transport already started")
	}
	t.started = true

	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	_, err := fmt.Fprintf(t.w, "event: endpoint\ndata: %s?session=%s\n\n", t.endpoint, t.sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to write endpoint event")
	}
	t.flusher.Flush()
	return nil
}

// Send implements Transport.Send: writes the message as a `message` event
func (t *ServerTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.wlock.Lock()
	defer t.wlock.Unlock()

	if t.closed {
		return errors.WithStack(ErrClosed)
	}
	if !t.started {
		return errors.WithStack(ErrNotConnected)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"session", t.sessionID,
		"type", message.Type,
		"id", message.MessageID(),
	)

	if _, err = fmt.Fprintf(t.w, "event: message\ndata: %s\n\n", data); err != nil {
		return errors.Wrap(err, "failed to write message event")
	}
	t.flusher.Flush()
	return nil
}

// HandlePostMessage parses a message posted by the client and
// dispatches it to the message handler
func (t *ServerTransport) HandlePostMessage(r *http.Request) error {
	if r.Method != http.MethodPost {
		return errors.Newf("method not allowed: %s", r.Method)
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		return errors.Newf("unsupported content type: %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize+1))
	if err != nil {
		return t.reportError(errors.Wrap(err, "failed to read request body"))
	}
	if len(body) > MaxMessageSize {
		return t.reportError(errors.Newf("message exceeds %d bytes", MaxMessageSize))
	}

	msg, err := transport.ParseMessage(body)
	if err != nil {
		return t.reportError(err)
	}

	t.hlock.RLock()
	handler := t.messageHandler
	t.hlock.RUnlock()
	if handler != nil {
		handler(r.Context(), msg)
	}
	return nil
}

func (t *ServerTransport) reportError(err error) error {
	t.hlock.RLock()
	handler := t.errorHandler
	t.hlock.RUnlock()
	if handler != nil {
		handler(err)
	}
	return err
}

// Close implements Transport.Close
func (t *ServerTransport) Close() error {
	t.closeOnce.Do(func() {
		t.wlock.Lock()
		t.closed = true
		t.wlock.Unlock()
		close(t.done)

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
func (t *ServerTransport) SetCloseHandler(handler func()) {
	t.hlock.Lock()
	defer t.hlock.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ServerTransport) SetErrorHandler(handler func(error)) {
	t.hlock.Lock()
	defer t.hlock.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ServerTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.hlock.Lock()
	defer t.hlock.Unlock()
	t.messageHandler = handler
}

var _ transport.Transport = (*ServerTransport)(nil)
