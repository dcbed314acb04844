// Package httptransport implements a stateless MCP transport:
// every message is one `POST /mcp`, and the response to a request is
// returned in the HTTP response body.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/mcp/transport", "httptransport")

// Path is the HTTP path of the endpoint
const Path = "/mcp"

// MaxMessageSize is the limit of a posted message
const MaxMessageSize = 4 * 1024 * 1024

// Endpoint is an HTTP server that accepts every posted message
// as a single-exchange server transport
type Endpoint struct {
	addr string

	lock     sync.Mutex
	server   *http.Server
	listener net.Listener
	closed   bool
	pending  sync.WaitGroup

	accept chan transport.Transport
	done   chan struct{}
}

// NewEndpoint returns an endpoint for host:port
func NewEndpoint(addr string) *Endpoint {
	return &Endpoint{
		addr:   addr,
		accept: make(chan transport.Transport),
		done:   make(chan struct{}),
	}
}

// Listen implements Acceptor.Listen
func (e *Endpoint) Listen(_ context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.closed {
		return errors.Newf("endpoint closed: %s", e.addr)
	}
	if e.listener != nil {
		return errors.Newf("already listening: %s", e.addr)
	}

	l, err := net.Listen("tcp", e.addr)
	if err != nil {
		return errors.WithStack(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, e.handle)

	e.listener = l
	e.addr = l.Addr().String()
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := e.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.KV(xlog.ERROR, "addr", e.Addr(), "err", err.Error())
		}
	}()
	return nil
}

// Accept implements Acceptor.Accept
func (e *Endpoint) Accept() <-chan transport.Transport {
	return e.accept
}

// Addr implements Acceptor.Addr
func (e *Endpoint) Addr() string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.addr
}

// URL returns the URL clients post to
func (e *Endpoint) URL() string {
	return "http://" + e.Addr() + Path
}

// Close implements Acceptor.Close
func (e *Endpoint) Close() error {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return nil
	}
	e.closed = true
	server := e.server
	e.lock.Unlock()

	close(e.done)
	e.pending.Wait()
	close(e.accept)

	if server != nil {
		if err := server.Close(); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (e *Endpoint) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST method is supported", http.StatusMethodNotAllowed)
		return
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > MaxMessageSize {
		http.Error(w, "message is too large", http.StatusRequestEntityTooLarge)
		return
	}
	msg, err := transport.ParseMessage(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	x := newExchange(msg)

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	e.pending.Add(1)
	e.lock.Unlock()

	accepted := false
	select {
	case e.accept <- x:
		accepted = true
	case <-e.done:
	case <-r.Context().Done():
	}
	e.pending.Done()

	if !accepted {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer x.Close()

	if msg.Type != transport.BaseMessageTypeJSONRPCRequestType {
		select {
		case <-x.delivered:
		case <-x.done:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	select {
	case resp := <-x.response:
		js, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, "failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(js)
	case <-x.done:
		http.Error(w, "connection closed", http.StatusServiceUnavailable)
	case <-r.Context().Done():
	}
}

// exchange is the server transport of one posted message
type exchange struct {
	msg       *transport.BaseJsonRpcMessage
	response  chan *transport.BaseJsonRpcMessage
	delivered chan struct{}

	done      chan struct{}
	closeOnce sync.Once

	lock           sync.RWMutex
	started        bool
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	closeHandler   func()
}

func newExchange(msg *transport.BaseJsonRpcMessage) *exchange {
	return &exchange{
		msg:       msg,
		response:  make(chan *transport.BaseJsonRpcMessage, 1),
		delivered: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start delivers the posted message
func (x *exchange) Start(ctx context.Context) error {
	x.lock.Lock()
	if x.started {
		x.lock.Unlock()
		return errors.New("exchange already started")
	}
	x.started = true
	handler := x.messageHandler
	x.lock.Unlock()

	if handler != nil {
		handler(ctx, x.msg)
	}
	close(x.delivered)
	return nil
}

// Send accepts the response to the posted request,
// other messages have no channel back to the client and are dropped
func (x *exchange) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	switch message.Type {
	case transport.BaseMessageTypeJSONRPCResponseType, transport.BaseMessageTypeJSONRPCErrorType:
		if x.msg.Type == transport.BaseMessageTypeJSONRPCRequestType && message.MessageID() == x.msg.MessageID() {
			select {
			case x.response <- message:
				return nil
			case <-x.done:
				return errors.New("exchange closed")
			default:
				return errors.Newf("duplicate response for id %d", message.MessageID())
			}
		}
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"reason", "dropped",
		"type", message.Type,
		"method", message.Method(),
	)
	return nil
}

func (x *exchange) Close() error {
	x.closeOnce.Do(func() {
		close(x.done)
		x.lock.RLock()
		handler := x.closeHandler
		x.lock.RUnlock()
		if handler != nil {
			handler()
		}
	})
	return nil
}

func (x *exchange) SetCloseHandler(handler func()) {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.closeHandler = handler
}

func (x *exchange) SetErrorHandler(func(error)) {}

func (x *exchange) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.messageHandler = handler
}

var (
	_ transport.Acceptor  = (*Endpoint)(nil)
	_ transport.Transport = (*exchange)(nil)
)
