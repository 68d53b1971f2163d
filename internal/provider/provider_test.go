package provider

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/transport"
)

// fakeChannel records posted envelopes and lets tests inject inbound ones.
type fakeChannel struct {
	mu      sync.Mutex
	posted  []*jsonrpc.Request
	handler transport.Handler
}

func (c *fakeChannel) Post(env *jsonrpc.Envelope) error {
	var req jsonrpc.Request
	if err := json.Unmarshal(env.Message, &req); err != nil {
		return err
	}
	c.mu.Lock()
	c.posted = append(c.posted, &req)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) OnMessage(h transport.Handler) func() {
	c.handler = h
	return func() { c.handler = nil }
}

func (c *fakeChannel) deliver(resp *jsonrpc.Response) {
	env, _ := jsonrpc.WrapResponse(resp)
	if c.handler != nil {
		c.handler(env)
	}
}

func (c *fakeChannel) requests() []*jsonrpc.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*jsonrpc.Request, len(c.posted))
	copy(out, c.posted)
	return out
}

func TestSendAssignsIncreasingIDs(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	p.Send("connect")
	p.Send("sendTransaction", map[string]any{"messages": []any{}})
	p.Send("disconnect")

	reqs := ch.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, int64(0), reqs[0].ID)
	assert.Equal(t, int64(1), reqs[1].ID)
	assert.Equal(t, int64(2), reqs[2].ID)
	assert.Equal(t, "https://dapp.example", reqs[0].Origin)
}

func TestResponseSettlesMatchingPromise(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	first := p.Send("connect")
	second := p.Send("connect")

	// Answer out of order: correlation is by id, not arrival order.
	ch.deliver(jsonrpc.NewResult(1, json.RawMessage(`"second"`)))
	ch.deliver(jsonrpc.NewResult(0, json.RawMessage(`"first"`)))

	ctx := context.Background()
	v1, err := first.Await(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"first"`, string(v1))

	v2, err := second.Await(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"second"`, string(v2))
}

func TestErrorResponseRejects(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	pr := p.Send("sendTransaction")
	ch.deliver(jsonrpc.NewError(0, jsonrpc.CodeInternalError, "user rejected"))

	_, err := pr.Await(context.Background())
	require.Error(t, err)
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeInternalError, rpcErr.Code)
}

func TestUnknownAndDuplicateResponsesAreDropped(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	pr := p.Send("connect")

	// Never-issued id: no effect.
	ch.deliver(jsonrpc.NewResult(99, json.RawMessage(`"phantom"`)))
	assert.False(t, pr.Settled())

	ch.deliver(jsonrpc.NewResult(0, json.RawMessage(`"real"`)))
	// Duplicate of an already-settled id: no effect, no panic.
	ch.deliver(jsonrpc.NewResult(0, json.RawMessage(`"dupe"`)))

	v, err := pr.Await(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"real"`, string(v))
	assert.Equal(t, 0, p.PendingCount())
}

func TestInvalidMethodFailsLocally(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	pr := p.Send("")
	require.True(t, pr.Settled())
	_, err := pr.Await(context.Background())
	assert.ErrorIs(t, err, ErrInvalidMethod)
	assert.Empty(t, ch.requests())
}

func TestSingleSliceParamIsFlattened(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	p.Send("sendTransaction", []any{"a", "b"})

	reqs := ch.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []any{"a", "b"}, reqs[0].Params)
}

func TestEventDispatchOrderAndPayload(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	var order []string
	var payloads []string
	p.On(EventAccountsChanged, func(result json.RawMessage) {
		order = append(order, "first")
		payloads = append(payloads, string(result))
	})
	p.On(EventAccountsChanged, func(result json.RawMessage) {
		order = append(order, "second")
		payloads = append(payloads, string(result))
	})

	ch.deliver(jsonrpc.NewEvent("accountsChanged", json.RawMessage(`["0:abc"]`)))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []string{`["0:abc"]`, `["0:abc"]`}, payloads)
}

func TestUnknownEventIsIgnored(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	fired := false
	p.On(EventAccountsChanged, func(json.RawMessage) { fired = true })

	ch.deliver(jsonrpc.NewEvent("balanceChanged", json.RawMessage(`{}`)))
	assert.False(t, fired)
}

func TestSubscriptionOffIsIdempotent(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	var hits int
	sub := p.On(EventChainChanged, func(json.RawMessage) { hits++ })
	keep := p.On(EventChainChanged, func(json.RawMessage) { hits += 10 })
	_ = keep

	sub.Off()
	sub.Off()

	ch.deliver(jsonrpc.NewEvent("chainChanged", json.RawMessage(`"mainnet"`)))
	assert.Equal(t, 10, hits)
}

func TestRegistryAdoptsPriorInstance(t *testing.T) {
	reg := NewRegistry()
	ch := &fakeChannel{}

	first := reg.Install("https://dapp.example", ch)
	inFlight := first.Send("connect")
	first.Send("connect")

	second := reg.Install("https://dapp.example", ch)
	require.Same(t, second, reg.Current())

	// Counter continues; ids are never reused.
	second.Send("disconnect")
	reqs := ch.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, int64(2), reqs[2].ID)

	// A response for a request issued before the reinstall still lands.
	ch.deliver(jsonrpc.NewResult(0, json.RawMessage(`"ok"`)))
	v, err := inFlight.Await(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(v))
}

func TestIsConnected(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	go func() {
		for len(ch.requests()) == 0 {
			time.Sleep(time.Millisecond)
		}
		ch.deliver(jsonrpc.NewResult(ch.requests()[0].ID, json.RawMessage(`"pong"`)))
	}()
	assert.True(t, p.IsConnected(context.Background()))

	// Nobody answers the second ping.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, p.IsConnected(ctx))
}

func TestUnsettledPromiseStaysUnsettled(t *testing.T) {
	ch := &fakeChannel{}
	p := New("https://dapp.example", ch)

	pr := p.Send("connect")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pr.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.PendingCount())
}
