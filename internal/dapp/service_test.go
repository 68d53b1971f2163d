package dapp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/broker"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/grants"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// autoSurface posts a canned decision as soon as a notification appears.
type autoSurface struct {
	b        *broker.Broker
	decision broker.Decision
	reject   error
	doReject bool
}

func (s *autoSurface) NotifyNewPending(n broker.Notification) {
	go func() {
		if s.doReject {
			_ = s.b.Reject(n.ID, s.reject)
			return
		}
		_ = s.b.Resolve(n.ID, s.decision)
	}()
}

type batchSigner struct {
	result string
	err    error
	calls  int
}

func (b *batchSigner) SignAndSendBatch(context.Context, tonconnect.TransactionPayload, string) (string, error) {
	b.calls++
	return b.result, b.err
}

func newService(t *testing.T, surface *autoSurface, signers Signers) (*Service, *broker.Broker, *grants.Store) {
	t.Helper()
	var surf broker.ApprovalSurface
	if surface != nil {
		surf = surface
	}
	b := broker.New(surf)
	if surface != nil {
		surface.b = b
	}
	store := grants.NewStore(filepath.Join(t.TempDir(), "connections.json"))
	require.NoError(t, store.Load())
	svc := NewService(b, store, "mainnet", signers, nil, nil)
	return svc, b, store
}

func TestConnectApprovalPersistsGrant(t *testing.T) {
	surface := &autoSurface{decision: broker.Decision{
		Accounts: []tonconnect.ItemReply{{Name: "ton_addr", Address: "0:abc"}},
	}}
	svc, b, store := newService(t, surface, Signers{})

	replies, err := svc.Connect(context.Background(), "https://dapp.example", "")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "0:abc", replies[0].Address)

	assert.True(t, store.HasOrigin("mainnet", "https://dapp.example"))
	assert.Empty(t, b.Pending())
}

func TestConnectRejectionCleansUp(t *testing.T) {
	surface := &autoSurface{doReject: true}
	svc, b, _ := newService(t, surface, Signers{})

	_, err := svc.Connect(context.Background(), "https://dapp.example", "")
	assert.ErrorIs(t, err, broker.ErrUserRejected)
	assert.Empty(t, b.Pending())
}

func TestConnectCallerTimeoutCleansUp(t *testing.T) {
	// No surface ever decides; the caller gives up.
	svc, b, _ := newService(t, nil, Signers{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Connect(ctx, "https://dapp.example", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, b.Pending())
}

func TestDisconnectRemovesOnlyMatchingGrants(t *testing.T) {
	svc, _, store := newService(t, nil, Signers{})
	require.NoError(t, store.Set("mainnet", []tonconnect.Grant{
		{Origin: "https://dapp.example", Address: "0:a"},
		{Origin: "https://dapp.example", Address: "0:b"},
		{Origin: "https://other.example", Address: "0:c"},
	}))

	require.NoError(t, svc.Disconnect(context.Background(), "https://dapp.example"))

	left := store.Get("mainnet")
	require.Len(t, left, 1)
	assert.Equal(t, "https://other.example", left[0].Origin)
}

func TestSendTransactionApprovedBatch(t *testing.T) {
	signer := &batchSigner{result: "signed-boc"}
	surface := &autoSurface{decision: broker.Decision{}}
	svc, b, _ := newService(t, surface, Signers{Key: signer})

	payload := tonconnect.TransactionPayload{
		Messages: []tonconnect.Message{{Address: "0:abc", Amount: 500}},
	}
	result, err := svc.SendTransaction(context.Background(), "https://dapp.example", "", payload)
	require.NoError(t, err)
	assert.Equal(t, "signed-boc", result)
	assert.Equal(t, 1, signer.calls)
	assert.Empty(t, b.Pending())
}

func TestSendTransactionEmptyPayloadNeverQueues(t *testing.T) {
	svc, b, _ := newService(t, nil, Signers{})

	_, err := svc.SendTransaction(context.Background(), "https://dapp.example", "", tonconnect.TransactionPayload{})
	assert.ErrorIs(t, err, tonconnect.ErrNoMessages)
	assert.Empty(t, b.Pending())
}

func TestRouterUnsupportedMethod(t *testing.T) {
	svc, _, _ := newService(t, nil, Signers{})
	r := NewRouter(svc)

	resp := r.Dispatch(context.Background(), &jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      9,
		Method:  "signRawData",
		Origin:  "https://dapp.example",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, int64(9), *resp.ID)
}

func TestRouterPing(t *testing.T) {
	svc, _, _ := newService(t, nil, Signers{})
	r := NewRouter(svc)

	resp := r.Dispatch(context.Background(), &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: 0, Method: "ping"})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"pong"`, string(resp.Result))
}

func TestRouterSendTransactionParams(t *testing.T) {
	signer := &batchSigner{result: "boc"}
	surface := &autoSurface{decision: broker.Decision{}}
	svc, _, _ := newService(t, surface, Signers{Key: signer})
	r := NewRouter(svc)

	// Params arrive as generic JSON values off the wire.
	var params []any
	raw := `[{"messages":[{"address":"0:abc","amount":"700"}],"valid_until":0}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &params))

	resp := r.Dispatch(context.Background(), &jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      3,
		Method:  "sendTransaction",
		Params:  params,
		Origin:  "https://dapp.example",
	})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"boc"`, string(resp.Result))
}
