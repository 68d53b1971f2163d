// Package transport moves opaque protocol envelopes between the untrusted
// page context and the privileged wallet context. The channel is
// unauthenticated; authorization decisions belong to the broker, keyed on
// the origin it stamps onto inbound requests.
package transport

import "github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"

// Handler receives every envelope delivered on a channel. Envelopes whose
// type is not one of this protocol's discriminators are dropped before the
// handler sees them.
type Handler func(env *jsonrpc.Envelope)

// Channel is the postMessage-like primitive. Post never blocks on the
// consumer; OnMessage registers a handler and returns an unsubscribe
// function.
type Channel interface {
	Post(env *jsonrpc.Envelope) error
	OnMessage(h Handler) (remove func())
}

func protocolEnvelope(env *jsonrpc.Envelope) bool {
	if env == nil {
		return false
	}
	return env.Type == jsonrpc.TypeProvider || env.Type == jsonrpc.TypeAPI
}
