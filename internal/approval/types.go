package approval

import (
	"time"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/broker"
)

type corsPolicy struct {
	allowedOrigins map[string]struct{}
	allowMethods   string

	allowHeaders string
	maxAge       int
}

type pairExchangeReq struct {
	PairID string `json:"pair_id"`
	Code   string `json:"code"`
}

type pairExchangeResp struct {
	OK     bool   `json:"ok"`
	Token  string `json:"token"`
	Header string `json:"header"`
}

type pairingEntry struct {
	CodeHash  []byte
	ExpiresAt time.Time
	Used      bool
	Token     string
}

type notificationsResp struct {
	OK         bool                  `json:"ok"`
	Generation uint64                `json:"generation"`
	Pending    []broker.Notification `json:"pending"`
}

type resolveReq struct {
	ID       int64           `json:"id"`
	Decision broker.Decision `json:"decision"`
}

type rejectReq struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason,omitempty"`
}

type okResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
