// Package localtransport provides an in-process MCP transport:
// a connected pair of pipes and an acceptor that hands out the server end.
package localtransport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
)

// ErrPipeClosed is returned by operations on a closed pipe
var ErrPipeClosed = errors.New("pipe closed")

const inboxSize = 64

// Pipe is one end of an in-process connection.
// Messages are delivered to the peer in order, on a dedicated goroutine,
// after a JSON round-trip so that the ends never share memory.
type Pipe struct {
	peer  *Pipe
	inbox chan *transport.BaseJsonRpcMessage

	// done and closeOnce are shared by both ends
	done      chan struct{}
	closeOnce *sync.Once

	notifyOnce sync.Once

	mu             sync.RWMutex
	started        bool
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

// NewPipe returns two connected ends, typically client and server
func NewPipe() (*Pipe, *Pipe) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := &Pipe{
		inbox:     make(chan *transport.BaseJsonRpcMessage, inboxSize),
		done:      done,
		closeOnce: once,
	}
	b := &Pipe{
		inbox:     make(chan *transport.BaseJsonRpcMessage, inboxSize),
		done:      done,
		closeOnce: once,
	}
	a.peer, b.peer = b, a
	return a, b
}

// Start implements Transport.Start
func (p *Pipe) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed() {
		return errors.WithStack(ErrPipeClosed)
	}
	if p.started {
		return errors.New("pipe already started")
	}
	p.started = true
	go p.loop()
	return nil
}

func (p *Pipe) loop() {
	for {
		select {
		case msg := <-p.inbox:
			p.mu.RLock()
			handler := p.messageHandler
			p.mu.RUnlock()
			if handler != nil {
				handler(context.Background(), msg)
			}
		case <-p.done:
			return
		}
	}
}

func (p *Pipe) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Send implements Transport.Send
func (p *Pipe) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if p.isClosed() {
		return errors.WithStack(ErrPipeClosed)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	msg, err := transport.ParseMessage(data)
	if err != nil {
		return err
	}

	select {
	case p.peer.inbox <- msg:
		return nil
	case <-p.done:
		return errors.WithStack(ErrPipeClosed)
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Close implements Transport.Close, it closes both ends.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.notifyClosed()
	p.peer.notifyClosed()
	return nil
}

func (p *Pipe) notifyClosed() {
	p.notifyOnce.Do(func() {
		p.mu.RLock()
		handler := p.closeHandler
		p.mu.RUnlock()
		if handler != nil {
			handler()
		}
	})
}

// SetCloseHandler implements Transport.SetCloseHandler
func (p *Pipe) SetCloseHandler(handler func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (p *Pipe) SetErrorHandler(handler func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (p *Pipe) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageHandler = handler
}

var _ transport.Transport = (*Pipe)(nil)
