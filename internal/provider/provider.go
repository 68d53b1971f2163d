// Package provider implements the page-context bridge client: it turns
// method calls into correlated request/response pairs over the transport
// channel and re-emits wallet-originated events to registered listeners.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/promise"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/transport"
)

var ErrInvalidMethod = errors.New("provider: method is not a valid string")

// Listener receives the event's result value.
type Listener func(result json.RawMessage)

type listenerEntry struct {
	id int64
	fn Listener
}

// Provider is the dApp-facing bridge client. Request ids are strictly
// increasing for the lifetime of the instance; a re-installed provider
// adopts its predecessor's counter and pending map so in-flight requests
// are not orphaned.
type Provider struct {
	origin string
	ch     transport.Channel
	remove func()

	mu        sync.Mutex
	nextID    int64
	pending   map[int64]*promise.Promise[json.RawMessage]
	listeners map[Event][]listenerEntry
	nextSub   int64
}

// New creates a provider bound to ch. The origin is stamped onto every
// outgoing request; the privileged side trusts it only for authorization
// decisions, never for content.
func New(origin string, ch transport.Channel) *Provider {
	p := &Provider{
		origin:    origin,
		ch:        ch,
		pending:   make(map[int64]*promise.Promise[json.RawMessage]),
		listeners: make(map[Event][]listenerEntry),
	}
	p.remove = ch.OnMessage(p.onMessage)
	return p
}

// Send posts a request and returns an unsettled promise for its response.
// There is no implicit timeout at this layer; callers bound the wait with
// their own context.
func (p *Provider) Send(method string, params ...any) *promise.Promise[json.RawMessage] {
	if method == "" {
		return promise.Rejected[json.RawMessage](ErrInvalidMethod)
	}

	// A single slice argument is treated as the full params list.
	if len(params) == 1 {
		if flat, ok := params[0].([]any); ok {
			params = flat
		}
	}
	if params == nil {
		params = []any{}
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	pr := promise.New[json.RawMessage]()
	p.pending[id] = pr
	p.mu.Unlock()

	env, err := jsonrpc.WrapRequest(&jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Method:  method,
		Params:  params,
		Origin:  p.origin,
	})
	if err == nil {
		err = p.ch.Post(env)
	}
	if err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		pr.Reject(err)
	}
	return pr
}

// Ping reports whether the privileged side answers at all.
func (p *Provider) Ping() *promise.Promise[json.RawMessage] {
	return p.Send("ping")
}

// IsConnected pings the privileged side and reports whether it answered
// within ctx.
func (p *Provider) IsConnected(ctx context.Context) bool {
	_, err := p.Ping().Await(ctx)
	return err == nil
}

// Subscription identifies one registered listener.
type Subscription struct {
	p     *Provider
	event Event
	id    int64
}

// Off removes the listener. Safe to call more than once.
func (s *Subscription) Off() {
	if s == nil || s.p == nil {
		return
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	entries := s.p.listeners[s.event]
	for i, e := range entries {
		if e.id == s.id {
			s.p.listeners[s.event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// On registers a listener for an event. Listeners fire in registration
// order.
func (p *Provider) On(event Event, fn Listener) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.listeners[event] = append(p.listeners[event], listenerEntry{id: id, fn: fn})
	return &Subscription{p: p, event: event, id: id}
}

// PendingCount exposes the number of unsettled requests. Entries are never
// swept; this is the observability hook for that retention.
func (p *Provider) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Provider) onMessage(env *jsonrpc.Envelope) {
	if env.Type != jsonrpc.TypeAPI {
		return
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(env.Message, &resp); err != nil || resp.JSONRPC == "" {
		return
	}

	if resp.IsResponse() {
		p.mu.Lock()
		pr, ok := p.pending[*resp.ID]
		if ok {
			delete(p.pending, *resp.ID)
		}
		p.mu.Unlock()
		if !ok {
			// Duplicate, late, or foreign response. Drop it.
			return
		}
		if resp.Error != nil {
			pr.Reject(resp.Error)
		} else {
			pr.Resolve(resp.Result)
		}
		return
	}

	event, ok := knownEvent(resp.Method)
	if !ok {
		logging.Debug("ignoring unrecognized event", "method", resp.Method)
		return
	}
	p.mu.Lock()
	entries := make([]listenerEntry, len(p.listeners[event]))
	copy(entries, p.listeners[event])
	p.mu.Unlock()
	for _, e := range entries {
		e.fn(resp.Result)
	}
}

// teardown detaches the provider from its channel. Pending requests stay
// registered so an adopting successor can settle them.
func (p *Provider) teardown() {
	if p.remove != nil {
		p.remove()
		p.remove = nil
	}
}
