package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

type recordingSurface struct {
	mu    sync.Mutex
	seen  []Notification
	calls int
}

func (s *recordingSurface) NotifyNewPending(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
	s.calls++
}

func onePayload() *tonconnect.TransactionPayload {
	return &tonconnect.TransactionPayload{
		Messages: []tonconnect.Message{{Address: "0:abc", Amount: 100}},
	}
}

func TestSubmitUnsupportedKind(t *testing.T) {
	b := New(&recordingSurface{})
	_, _, err := b.Submit(Kind("signRawData"), "https://dapp.example", "", nil)
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	assert.Empty(t, b.Pending())
}

func TestSubmitEmptyTransactionPayload(t *testing.T) {
	b := New(&recordingSurface{})

	_, _, err := b.Submit(KindSendTransaction, "https://dapp.example", "", &tonconnect.TransactionPayload{})
	assert.ErrorIs(t, err, tonconnect.ErrNoMessages)
	assert.Empty(t, b.Pending())

	_, _, err = b.Submit(KindSendTransaction, "https://dapp.example", "", nil)
	assert.ErrorIs(t, err, tonconnect.ErrNoMessages)
	assert.Empty(t, b.Pending())
}

func TestSubmitQueuesAndSignalsSurface(t *testing.T) {
	surface := &recordingSurface{}
	b := New(surface)

	id, pr, err := b.Submit(KindConnect, "https://dapp.example", "https://dapp.example/logo.png", nil)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.False(t, pr.Settled())

	pending := b.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, KindConnect, pending[0].Kind)
	assert.Equal(t, "https://dapp.example/logo.png", pending[0].Logo)
	assert.Equal(t, 1, surface.calls)
}

func TestResolveSettlesAndAdvances(t *testing.T) {
	surface := &recordingSurface{}
	b := New(surface)

	id1, pr1, err := b.Submit(KindConnect, "https://a.example", "", nil)
	require.NoError(t, err)
	id2, _, err := b.Submit(KindSendTransaction, "https://b.example", "", onePayload())
	require.NoError(t, err)

	decision := Decision{Accounts: []tonconnect.ItemReply{{Name: "ton_addr", Address: "0:abc"}}}
	require.NoError(t, b.Resolve(id1, decision))

	got, err := pr1.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, decision, got)

	// Queue advanced: the surface was signalled again with the new head.
	require.Len(t, b.Pending(), 1)
	assert.Equal(t, id2, b.Pending()[0].ID)
	assert.Equal(t, id2, surface.seen[len(surface.seen)-1].ID)
}

func TestRejectDefaultsToUserRejected(t *testing.T) {
	b := New(&recordingSurface{})
	id, pr, err := b.Submit(KindConnect, "https://dapp.example", "", nil)
	require.NoError(t, err)

	require.NoError(t, b.Reject(id, nil))
	_, err = pr.Await(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Empty(t, b.Pending())
}

func TestAttachSurfaceLate(t *testing.T) {
	b := New(nil)
	_, _, err := b.Submit(KindConnect, "https://dapp.example", "", nil)
	require.NoError(t, err)

	surface := &recordingSurface{}
	b.AttachSurface(surface)

	_, _, err = b.Submit(KindConnect, "https://other.example", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, surface.calls)
}

func TestResolveUnknownID(t *testing.T) {
	b := New(&recordingSurface{})
	assert.ErrorIs(t, b.Resolve(41, Decision{}), ErrUnknownID)
	assert.ErrorIs(t, b.Reject(41, nil), ErrUnknownID)
}

func TestRemoveIsIdempotentAndPreservesPromise(t *testing.T) {
	b := New(&recordingSurface{})
	id, pr, err := b.Submit(KindConnect, "https://dapp.example", "", nil)
	require.NoError(t, err)

	b.Remove(id)
	b.Remove(id)
	assert.Empty(t, b.Pending())
	assert.False(t, pr.Settled())

	// After removal the id is gone for decision purposes.
	assert.ErrorIs(t, b.Resolve(id, Decision{}), ErrUnknownID)
}

func TestCloseSurfaceDrainsAll(t *testing.T) {
	b := New(&recordingSurface{})

	_, pr1, err := b.Submit(KindConnect, "https://a.example", "", nil)
	require.NoError(t, err)
	_, pr2, err := b.Submit(KindSendTransaction, "https://b.example", "", onePayload())
	require.NoError(t, err)

	b.CloseSurface()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = pr1.Await(ctx)
	assert.ErrorIs(t, err, ErrSurfaceClosed)
	_, err = pr2.Await(ctx)
	assert.ErrorIs(t, err, ErrSurfaceClosed)

	// Terminal: new submissions fail until a fresh broker is wired up.
	_, _, err = b.Submit(KindConnect, "https://c.example", "", nil)
	assert.ErrorIs(t, err, ErrSurfaceClosed)
}

func TestNotificationPayloadIsImmutable(t *testing.T) {
	b := New(&recordingSurface{})
	payload := onePayload()
	_, _, err := b.Submit(KindSendTransaction, "https://dapp.example", "", payload)
	require.NoError(t, err)

	got := b.Pending()[0].Payload
	require.Len(t, got.Messages, 1)
	assert.Equal(t, int64(100), got.Messages[0].Amount)
}
