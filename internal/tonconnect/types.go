// Package tonconnect holds the dApp-facing payload shapes for the three
// supported protocol requests: connect, disconnect and sendTransaction.
package tonconnect

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
)

// Message op codes recognised for display purposes.
const (
	opNFTTransfer    = 0x5fcc3d14
	opJettonTransfer = 0xf8a7ea5
)

// MessageKind classifies a message payload for the approval UI.
type MessageKind string

const (
	KindPlainTransfer  MessageKind = "transfer"
	KindNFTTransfer    MessageKind = "nft-transfer"
	KindJettonTransfer MessageKind = "jetton-transfer"
)

// Message is one transfer inside a transaction payload. Amount is in
// nanocurrency units. Payload is an optional base64-encoded binary blob.
type Message struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount,string"`
	Payload string `json:"payload,omitempty"`
	StateIn string `json:"stateInit,omitempty"`
}

// Kind inspects the first 32 bits of the payload blob for a known op code.
// Unparseable payloads are plain transfers.
func (m Message) Kind() MessageKind {
	if m.Payload == "" {
		return KindPlainTransfer
	}
	raw, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil || len(raw) < 4 {
		return KindPlainTransfer
	}
	switch binary.BigEndian.Uint32(raw[:4]) {
	case opNFTTransfer:
		return KindNFTTransfer
	case opJettonTransfer:
		return KindJettonTransfer
	default:
		return KindPlainTransfer
	}
}

// TransactionPayload is the sendTransaction request body. The payload held
// by a pending notification is immutable: signing progress lives in the
// pipeline, never here.
type TransactionPayload struct {
	Messages   []Message `json:"messages"`
	ValidUntil int64     `json:"valid_until,omitempty"`
}

var ErrNoMessages = errors.New("tonconnect: transaction payload has no messages")

// Validate rejects payloads that must never reach the approval queue.
func (p TransactionPayload) Validate() error {
	if len(p.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// ItemReply is one account-proof item in a connect decision.
type ItemReply struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Proof   string `json:"proof,omitempty"`
}

// Grant is a persisted access grant permitting an origin to issue wallet
// requests without re-approving the connection.
type Grant struct {
	Origin  string `json:"origin"`
	Address string `json:"address"`
	Added   int64  `json:"added,omitempty"`
}
