package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// DefaultConfirmTimeout bounds the wait for a message's inclusion before
// the next one may be signed.
const DefaultConfirmTimeout = 60 * time.Second

// HardwareSigner is a device that signs and broadcasts one message at a
// time. SignAndSend returns the wallet sequence number the broadcast was
// made at; FetchLastPayload returns the device's last produced blob.
type HardwareSigner interface {
	SignAndSend(ctx context.Context, msg tonconnect.Message) (seqno uint32, err error)
	FetchLastPayload(ctx context.Context) (string, error)
}

// SeqnoWaiter blocks until the wallet's sequence number has advanced past
// seqno, i.e. the broadcast at that seqno was included.
type SeqnoWaiter interface {
	Wait(ctx context.Context, seqno uint32) error
}

// HardwareStrategy signs messages strictly in payload order. The device
// cannot atomically submit multiple messages, so between messages the
// strategy waits for on-chain confirmation, bounded by ConfirmTimeout.
type HardwareStrategy struct {
	Signer HardwareSigner
	Waiter SeqnoWaiter
	// ConfirmTimeout defaults to DefaultConfirmTimeout when zero.
	ConfirmTimeout time.Duration
}

func (s *HardwareStrategy) Sequential() bool { return true }

func (s *HardwareStrategy) run(ctx context.Context, p *Pipeline) (string, error) {
	timeout := s.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	msgs := p.payload.Messages
	for i, msg := range msgs {
		// A retry of a partially-confirmed payload re-attempts only the
		// unconfirmed suffix.
		if p.status(i) == StatusConfirmed {
			continue
		}

		p.setStatus(i, StatusSent)
		seqno, err := s.Signer.SignAndSend(ctx, msg)
		if err != nil {
			return "", fmt.Errorf("sign message %d: %w", i, err)
		}

		if i != len(msgs)-1 {
			if err := s.waitConfirmed(ctx, seqno, timeout); err != nil {
				return "", fmt.Errorf("confirm message %d: %w", i, err)
			}
		}
		p.setStatus(i, StatusConfirmed)
	}

	// Best effort: an empty result payload is preferable to failing an
	// operation whose transfers are already on chain.
	result, err := s.Signer.FetchLastPayload(ctx)
	if err != nil {
		logging.Warn("fetching signed payload failed, returning empty result", "error", err)
		return "", nil
	}
	return result, nil
}

func (s *HardwareStrategy) waitConfirmed(ctx context.Context, seqno uint32, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Waiter.Wait(waitCtx, seqno); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrSigningTimeout
		}
		return err
	}
	return nil
}
