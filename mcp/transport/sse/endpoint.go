package sse

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
)

// DefaultAddr is the default address of the SSE endpoint
const DefaultAddr = "127.0.0.1:3001"

// Endpoint paths
const (
	StreamPath  = "/sse"
	MessagePath = "/message"
)

// Endpoint is an HTTP server accepting SSE sessions.
// Each `GET /sse` stream is accepted as one server transport.
type Endpoint struct {
	addr string

	lock     sync.Mutex
	listener net.Listener
	server   *http.Server
	sessions map[string]*ServerTransport
	closed   bool
	// pending tracks handlers handing a session to Accept
	pending sync.WaitGroup

	accept chan transport.Transport
	done   chan struct{}
}

// NewEndpoint returns an endpoint for host:port.
// Use port 0 to bind a random port, and Addr to read it after Listen.
func NewEndpoint(addr string) *Endpoint {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Endpoint{
		addr:     addr,
		sessions: make(map[string]*ServerTransport),
		accept:   make(chan transport.Transport),
		done:     make(chan struct{}),
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
	mux.HandleFunc(StreamPath, e.handleStream)
	mux.HandleFunc(MessagePath, e.handleMessage)

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

	logger.KV(xlog.INFO, "status", "listening", "addr", e.addr)
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

// URL returns the URL of the SSE stream
func (e *Endpoint) URL() string {
	return "http://" + e.Addr() + StreamPath
}

// Close implements Acceptor.Close: stops the HTTP server and closes all sessions
func (e *Endpoint) Close() error {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return nil
	}
	e.closed = true
	server := e.server
	sessions := make([]*ServerTransport, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.lock.Unlock()

	close(e.done)
	e.pending.Wait()
	close(e.accept)

	for _, s := range sessions {
		_ = s.Close()
	}

	if server != nil {
		if err := server.Close(); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (e *Endpoint) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	t, err := NewServerTransport(MessagePath, w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	e.sessions[t.SessionID()] = t
	e.pending.Add(1)
	e.lock.Unlock()

	defer func() {
		e.lock.Lock()
		delete(e.sessions, t.SessionID())
		e.lock.Unlock()
	}()

	accepted := false
	select {
	case e.accept <- t:
		accepted = true
	case <-e.done:
	case <-r.Context().Done():
	}
	e.pending.Done()

	if !accepted {
		_ = t.Close()
		return
	}

	logger.ContextKV(r.Context(), xlog.DEBUG,
		"status", "session_opened",
		"session", t.SessionID(),
		"remote", r.RemoteAddr,
	)

	select {
	case <-t.Done():
	case <-r.Context().Done():
		_ = t.Close()
	}

	logger.ContextKV(r.Context(), xlog.DEBUG,
		"status", "session_closed",
		"session", t.SessionID(),
	)
}

func (e *Endpoint) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session")
	e.lock.Lock()
	t := e.sessions[sessionID]
	e.lock.Unlock()

	if t == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if err := t.HandlePostMessage(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

var _ transport.Acceptor = (*Endpoint)(nil)
