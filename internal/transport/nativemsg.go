package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
)

// MaxMessageSize caps a single native-messaging frame (1MB, Chrome spec).
const MaxMessageSize = 1024 * 1024

var (
	ErrChannelClosed   = errors.New("transport: channel closed")
	ErrMessageTooLarge = errors.New("transport: message exceeds size limit")
)

// NativeChannel speaks the Chrome native-messaging framing: 4-byte
// little-endian length prefix followed by a JSON document. The browser
// launches the host with the channel bound to stdin/stdout.
type NativeChannel struct {
	r io.Reader

	wmu sync.Mutex
	w   io.Writer

	mu       sync.Mutex
	handlers map[int64]Handler
	nextID   int64
}

// NewNativeChannel wraps a reader/writer pair (stdin/stdout in
// production) in a Channel. Run must be called to pump inbound frames.
func NewNativeChannel(r io.Reader, w io.Writer) *NativeChannel {
	return &NativeChannel{
		r:        r,
		w:        w,
		handlers: make(map[int64]Handler),
	}
}

// Post writes one framed envelope.
func (c *NativeChannel) Post(env *jsonrpc.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := binary.Write(c.w, binary.LittleEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// OnMessage registers a handler for inbound envelopes.
func (c *NativeChannel) OnMessage(h Handler) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Run reads frames until the reader is exhausted, dispatching protocol
// envelopes to the registered handlers. Frames that fail to parse or carry
// a foreign type tag are dropped.
func (c *NativeChannel) Run() error {
	for {
		raw, err := readFrame(c.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var env jsonrpc.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logging.Debug("dropping unparseable frame", "error", err)
			continue
		}
		if !protocolEnvelope(&env) {
			continue
		}

		c.mu.Lock()
		hs := make([]Handler, 0, len(c.handlers))
		for _, h := range c.handlers {
			hs = append(hs, h)
		}
		c.mu.Unlock()
		for _, h := range hs {
			h(&env)
		}
	}
}

func readFrame(r io.Reader) (json.RawMessage, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("invalid frame length: 0")
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return msg, nil
}
