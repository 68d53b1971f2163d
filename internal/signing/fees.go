package signing

import (
	"context"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// Fees is the estimator's breakdown, all integer nanocurrency units. The
// wire field names match the node RPC and are displayed as-is.
type Fees struct {
	FwdFee     int64 `json:"fwd_fee"`
	InFwdFee   int64 `json:"in_fwd_fee"`
	StorageFee int64 `json:"storage_fee"`
	GasFee     int64 `json:"gas_fee"`
}

// Total sums the fee components.
func (f Fees) Total() int64 {
	return f.FwdFee + f.InFwdFee + f.StorageFee + f.GasFee
}

// Estimator produces a fee estimate for a full payload. It is a soft
// dependency: failure affects only what the approving party sees.
type Estimator interface {
	Estimate(ctx context.Context, payload tonconnect.TransactionPayload) (*Fees, error)
}
