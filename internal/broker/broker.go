// Package broker queues inbound dApp requests as pending notifications,
// serializes user-facing approval, and resolves the original caller once a
// decision is posted. It owns the queue; presentation belongs to the
// approval surface.
package broker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/promise"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// Kind selects the protocol behavior of a pending request.
type Kind string

const (
	KindConnect         Kind = "connect"
	KindDisconnect      Kind = "disconnect"
	KindSendTransaction Kind = "sendTransaction"
)

var (
	ErrUnsupportedMethod = errors.New("broker: unsupported method")
	ErrUserRejected      = errors.New("broker: user rejected request")
	ErrSurfaceClosed     = errors.New("broker: approval surface closed")
	ErrUnknownID         = errors.New("broker: no pending request with that id")
)

// Decision is the human-supplied outcome for a pending notification.
type Decision struct {
	// Accounts carries the account-proof items for a connect approval.
	Accounts []tonconnect.ItemReply `json:"accounts,omitempty"`
	// SequentialConfirmed marks the extra acknowledgement required before
	// a hardware signer may process a multi-message payload.
	SequentialConfirmed bool `json:"sequentialConfirmed,omitempty"`
}

// Notification is a queued, not-yet-decided request. The payload is
// immutable for the notification's lifetime.
type Notification struct {
	ID        int64                          `json:"id"`
	Kind      Kind                           `json:"kind"`
	Origin    string                         `json:"origin"`
	Logo      string                         `json:"logo,omitempty"`
	Payload   *tonconnect.TransactionPayload `json:"payload,omitempty"`
	CreatedAt time.Time                      `json:"createdAt"`
}

// ApprovalSurface is implemented by the external UI layer. The broker only
// signals; it never renders.
type ApprovalSurface interface {
	// NotifyNewPending announces the notification currently at the head
	// of the queue.
	NotifyNewPending(n Notification)
}

// Broker holds the pending queue and one decision promise per entry.
type Broker struct {
	mu      sync.Mutex
	nextID  int64
	queue   []Notification
	waiters map[int64]*promise.Promise[Decision]
	surface ApprovalSurface
	closed  bool
}

func New(surface ApprovalSurface) *Broker {
	return &Broker{
		waiters: make(map[int64]*promise.Promise[Decision]),
		surface: surface,
	}
}

// AttachSurface binds the surface after construction. The surface itself
// needs the broker to serve decisions, so one of the two is built first.
func (b *Broker) AttachSurface(surface ApprovalSurface) {
	b.mu.Lock()
	b.surface = surface
	b.mu.Unlock()
}

func supported(kind Kind) bool {
	switch kind {
	case KindConnect, KindDisconnect, KindSendTransaction:
		return true
	default:
		return false
	}
}

// Submit validates the request, enqueues a pending notification and
// returns its id plus a promise that settles when a decision is posted.
// Validation failures happen before any queue entry exists.
func (b *Broker) Submit(kind Kind, origin, logo string, payload *tonconnect.TransactionPayload) (int64, *promise.Promise[Decision], error) {
	if !supported(kind) {
		return 0, nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, kind)
	}
	if kind == KindSendTransaction {
		if payload == nil {
			return 0, nil, tonconnect.ErrNoMessages
		}
		if err := payload.Validate(); err != nil {
			return 0, nil, err
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, nil, ErrSurfaceClosed
	}
	id := b.nextID
	b.nextID++
	n := Notification{
		ID:        id,
		Kind:      kind,
		Origin:    origin,
		Logo:      logo,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	b.queue = append(b.queue, n)
	pr := promise.New[Decision]()
	b.waiters[id] = pr
	surface := b.surface
	b.mu.Unlock()

	logging.Info("request queued", "id", id, "kind", string(kind), "origin", origin)
	if surface != nil {
		surface.NotifyNewPending(n)
	}
	return id, pr, nil
}

// Pending returns a snapshot of the queue in FIFO order.
func (b *Broker) Pending() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.queue))
	copy(out, b.queue)
	return out
}

// Resolve settles the request's promise with the decision, removes the
// notification, and signals the surface with the next head if any remain.
func (b *Broker) Resolve(id int64, d Decision) error {
	pr, next, err := b.take(id)
	if err != nil {
		return err
	}
	pr.Resolve(d)
	b.announce(next)
	return nil
}

// Reject settles the request's promise with failure. A nil reason means
// an explicit negative decision.
func (b *Broker) Reject(id int64, reason error) error {
	if reason == nil {
		reason = ErrUserRejected
	}
	pr, next, err := b.take(id)
	if err != nil {
		return err
	}
	pr.Reject(reason)
	b.announce(next)
	return nil
}

// Remove drops the notification without settling its promise. Used by the
// scoped cleanup that runs on every exit path of a handler; removing an
// already-removed id is a no-op.
func (b *Broker) Remove(id int64) {
	b.mu.Lock()
	b.removeLocked(id)
	delete(b.waiters, id)
	b.mu.Unlock()
}

// CloseSurface fails every outstanding request with ErrSurfaceClosed. The
// outcome is terminal for those requests; callers must re-submit.
func (b *Broker) CloseSurface() {
	b.mu.Lock()
	waiters := b.waiters
	n := len(b.queue)
	b.waiters = make(map[int64]*promise.Promise[Decision])
	b.queue = nil
	b.closed = true
	b.mu.Unlock()

	if n > 0 {
		logging.Warn("approval surface closed with pending requests", "dropped", n)
	}
	for _, pr := range waiters {
		pr.Reject(ErrSurfaceClosed)
	}
}

func (b *Broker) take(id int64) (*promise.Promise[Decision], *Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pr, ok := b.waiters[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	delete(b.waiters, id)
	b.removeLocked(id)
	if len(b.queue) > 0 {
		head := b.queue[0]
		return pr, &head, nil
	}
	return pr, nil, nil
}

func (b *Broker) removeLocked(id int64) {
	for i, n := range b.queue {
		if n.ID == id {
			b.queue = append(b.queue[:i:i], b.queue[i+1:]...)
			return
		}
	}
}

func (b *Broker) announce(next *Notification) {
	if next == nil {
		return
	}
	b.mu.Lock()
	surface := b.surface
	b.mu.Unlock()
	if surface != nil {
		surface.NotifyNewPending(*next)
	}
}
