// Package jsonrpc defines the wire contract between the injected page
// provider and the privileged wallet context. The shapes here must not
// change: deployed dApps parse them as-is.
package jsonrpc

import "encoding/json"

// Channel discriminators. Only envelopes tagged with these types belong to
// this protocol; everything else on a shared channel is ignored.
const (
	TypeProvider = "OpenMaskProvider" // page -> wallet
	TypeAPI      = "OpenMaskAPI"      // wallet -> page
)

const Version = "2.0"

// JSON-RPC error codes (EIP-1474 style).
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Envelope is the outer wrapper posted on the transport channel.
type Envelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// Request travels page -> wallet inside a TypeProvider envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Origin  string `json:"origin"`
	Event   bool   `json:"event"`
}

// Response travels wallet -> page inside a TypeAPI envelope. Exactly one
// of Result/Error is set. An event notification reuses the same shape with
// ID omitted and Method set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// IsResponse reports whether the message correlates to a request, as
// opposed to an unsolicited event.
func (r *Response) IsResponse() bool { return r.ID != nil }

// NewResult builds a success response for id.
func NewResult(id int64, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, ID: &id, Result: result}
}

// NewError builds an error response for id.
func NewError(id int64, code int, msg string) *Response {
	return &Response{JSONRPC: Version, ID: &id, Error: &Error{Code: code, Message: msg}}
}

// NewEvent builds an unsolicited event notification.
func NewEvent(method string, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, Method: method, Result: result}
}

// WrapRequest marshals a request into a provider-tagged envelope.
func WrapRequest(req *Request) (*Envelope, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: TypeProvider, Message: raw}, nil
}

// WrapResponse marshals a response into an API-tagged envelope.
func WrapResponse(resp *Response) (*Envelope, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: TypeAPI, Message: raw}, nil
}
