package transport

import (
	"sync"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
)

// Pipe is an in-process channel endpoint. NewPipe returns two connected
// endpoints: what one side posts, the other side's handlers receive.
// Delivery is asynchronous and FIFO per endpoint, matching the message
// semantics of a browser window channel.
type Pipe struct {
	mu       sync.Mutex
	peer     *Pipe
	handlers map[int64]Handler
	nextID   int64
	queue    chan *jsonrpc.Envelope
	closed   bool
}

// NewPipe creates a connected endpoint pair. Close the pair by calling
// Close on either side.
func NewPipe() (*Pipe, *Pipe) {
	a := newEndpoint()
	b := newEndpoint()
	a.peer, b.peer = b, a
	go a.run()
	go b.run()
	return a, b
}

func newEndpoint() *Pipe {
	return &Pipe{
		handlers: make(map[int64]Handler),
		queue:    make(chan *jsonrpc.Envelope, 64),
	}
}

func (p *Pipe) run() {
	for env := range p.queue {
		if !protocolEnvelope(env) {
			continue
		}
		p.mu.Lock()
		hs := make([]Handler, 0, len(p.handlers))
		for _, h := range p.handlers {
			hs = append(hs, h)
		}
		p.mu.Unlock()
		for _, h := range hs {
			h(env)
		}
	}
}

// Post delivers the envelope to the peer endpoint's handlers.
func (p *Pipe) Post(env *jsonrpc.Envelope) error {
	p.mu.Lock()
	peer := p.peer
	closed := p.closed
	p.mu.Unlock()
	if closed || peer == nil {
		return ErrChannelClosed
	}
	peer.queue <- env
	return nil
}

// OnMessage registers a handler for envelopes arriving at this endpoint.
func (p *Pipe) OnMessage(h Handler) (remove func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = h
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// Close tears down both endpoints.
func (p *Pipe) Close() {
	p.mu.Lock()
	peer := p.peer
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if peer != nil {
		peer.mu.Lock()
		if !peer.closed {
			peer.closed = true
			close(peer.queue)
		}
		peer.mu.Unlock()
	}
}
