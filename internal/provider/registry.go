package provider

import (
	"encoding/json"
	"sync"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/promise"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/transport"
)

// Registry is the process-wide slot a page holds its provider in. A second
// install (extension update, script re-injection) must not orphan requests
// that are already in flight, so installation is an explicit ownership
// transfer: the new instance adopts the predecessor's pending map and id
// counter, and the predecessor is detached from the channel before the new
// listener attaches.
type Registry struct {
	mu      sync.Mutex
	current *Provider
}

func NewRegistry() *Registry { return &Registry{} }

// Install creates a provider on ch and makes it current, adopting any
// prior instance's in-flight state.
func (r *Registry) Install(origin string, ch transport.Channel) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current
	if prev != nil {
		prev.teardown()
	}

	p := &Provider{
		origin:    origin,
		ch:        ch,
		pending:   make(map[int64]*promise.Promise[json.RawMessage]),
		listeners: make(map[Event][]listenerEntry),
	}
	if prev != nil {
		prev.mu.Lock()
		p.pending = prev.pending
		p.nextID = prev.nextID
		prev.mu.Unlock()
		logging.Info("provider reinstalled", "adopted_pending", len(p.pending), "next_id", p.nextID)
	}
	p.remove = ch.OnMessage(p.onMessage)

	r.current = p
	return p
}

// Current returns the installed provider, or nil.
func (r *Registry) Current() *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Uninstall detaches the current provider without a successor.
func (r *Registry) Uninstall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.teardown()
		r.current = nil
	}
}
