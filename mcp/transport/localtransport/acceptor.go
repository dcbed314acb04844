package localtransport

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
)

const backlog = 16

// Acceptor is an in-process listening endpoint.
// Clients connect with Dial, the server end of each pipe is
// delivered on Accept.
type Acceptor struct {
	name  string
	conns chan transport.Transport

	mu        sync.Mutex
	listening bool
	closed    bool
}

// NewAcceptor returns an acceptor with the given name
func NewAcceptor(name string) *Acceptor {
	return &Acceptor{
		name:  name,
		conns: make(chan transport.Transport, backlog),
	}
}

// Listen implements Acceptor.Listen
func (a *Acceptor) Listen(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.Errorf("acceptor closed: %s", a.Addr())
	}
	if a.listening {
		return errors.Errorf("address already in use: %s", a.Addr())
	}
	a.listening = true
	return nil
}

// Accept implements Acceptor.Accept
func (a *Acceptor) Accept() <-chan transport.Transport {
	return a.conns
}

// Addr implements Acceptor.Addr
func (a *Acceptor) Addr() string {
	return "local://" + a.name
}

// Close implements Acceptor.Close
func (a *Acceptor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed {
		a.closed = true
		close(a.conns)
	}
	return nil
}

// Dial connects a new client and returns its end of the pipe
func (a *Acceptor) Dial(_ context.Context) (*Pipe, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.listening || a.closed {
		return nil, errors.Errorf("connection refused: %s", a.Addr())
	}

	client, server := NewPipe()
	select {
	case a.conns <- server:
		return client, nil
	default:
		return nil, errors.Errorf("accept backlog is full: %s", a.Addr())
	}
}

var _ transport.Acceptor = (*Acceptor)(nil)
