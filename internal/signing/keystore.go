package signing

import (
	"context"
	"fmt"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// KeySigner holds key material in memory and can combine all messages into
// one signed transaction submitted atomically.
type KeySigner interface {
	SignAndSendBatch(ctx context.Context, payload tonconnect.TransactionPayload, origin string) (string, error)
}

// KeyStrategy signs the whole payload in one batch: either every message
// is confirmed together, or the operation fails with none confirmed.
type KeyStrategy struct {
	Signer KeySigner
}

func (s *KeyStrategy) Sequential() bool { return false }

func (s *KeyStrategy) run(ctx context.Context, p *Pipeline) (string, error) {
	for i := range p.payload.Messages {
		p.setStatus(i, StatusSent)
	}

	result, err := s.Signer.SignAndSendBatch(ctx, p.payload, p.origin)
	if err != nil {
		return "", fmt.Errorf("batch sign: %w", err)
	}

	for i := range p.payload.Messages {
		p.setStatus(i, StatusConfirmed)
	}
	return result, nil
}
