// Package dapp implements the domain logic behind the three supported
// protocol requests, sitting between the wire router and the broker.
package dapp

import (
	"context"
	"fmt"
	"time"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/broker"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/grants"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/signing"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// Signers bundles the wallet's available signing backends. UseHardware
// selects the strategy for every sendTransaction until switched.
type Signers struct {
	Hardware    signing.HardwareSigner
	Waiter      signing.SeqnoWaiter
	Key         signing.KeySigner
	UseHardware bool
}

// Service handles connect, disconnect and sendTransaction.
type Service struct {
	broker    *broker.Broker
	store     *grants.Store
	network   string
	signers   Signers
	estimator signing.Estimator
	progress  signing.ProgressFunc
}

func NewService(b *broker.Broker, store *grants.Store, network string, signers Signers, est signing.Estimator, progress signing.ProgressFunc) *Service {
	return &Service{
		broker:    b,
		store:     store,
		network:   network,
		signers:   signers,
		estimator: est,
		progress:  progress,
	}
}

// Connect queues an approval request and maps the decision to the
// protocol's account-proof reply shape. The pending notification is
// removed on every exit path.
func (s *Service) Connect(ctx context.Context, origin, logo string) ([]tonconnect.ItemReply, error) {
	id, pr, err := s.broker.Submit(broker.KindConnect, origin, logo, nil)
	if err != nil {
		return nil, err
	}
	defer s.broker.Remove(id)

	decision, err := pr.Await(ctx)
	if err != nil {
		return nil, err
	}

	// Record the grant so the origin skips re-approval next time. A store
	// failure does not undo an approval the user already gave.
	if len(decision.Accounts) > 0 {
		grant := tonconnect.Grant{
			Origin:  origin,
			Address: decision.Accounts[0].Address,
			Added:   time.Now().Unix(),
		}
		if err := s.store.Add(s.network, grant); err != nil {
			logging.Warn("persisting access grant failed", "origin", origin, "error", err)
		}
	}
	return decision.Accounts, nil
}

// Disconnect revokes every grant the origin holds on the current network.
// It bypasses the approval queue: disconnection is self-service.
func (s *Service) Disconnect(_ context.Context, origin string) error {
	removed, err := s.store.RevokeOrigin(s.network, origin)
	if err != nil {
		return err
	}
	logging.Info("origin disconnected", "origin", origin, "grants_removed", removed)
	return nil
}

// SendTransaction queues the payload for approval and, once approved,
// drives the signing pipeline to completion. The returned string is the
// signed result payload, or "" when the signer could not produce one.
func (s *Service) SendTransaction(ctx context.Context, origin, logo string, payload tonconnect.TransactionPayload) (string, error) {
	id, pr, err := s.broker.Submit(broker.KindSendTransaction, origin, logo, &payload)
	if err != nil {
		return "", err
	}
	defer s.broker.Remove(id)

	decision, err := pr.Await(ctx)
	if err != nil {
		return "", err
	}

	pipeline := signing.NewPipeline(payload, origin,
		signing.WithEstimator(s.estimator),
		signing.WithProgress(s.progress),
	)
	if decision.SequentialConfirmed {
		pipeline.AcknowledgeSequential()
	}

	strat, err := s.strategy()
	if err != nil {
		return "", err
	}
	result, err := pipeline.Run(ctx, strat)
	if err != nil {
		return "", fmt.Errorf("signing pipeline: %w", err)
	}
	return result, nil
}

func (s *Service) strategy() (signing.Strategy, error) {
	if s.signers.UseHardware {
		if s.signers.Hardware == nil || s.signers.Waiter == nil {
			return nil, fmt.Errorf("dapp: hardware signer not available")
		}
		return &signing.HardwareStrategy{Signer: s.signers.Hardware, Waiter: s.signers.Waiter}, nil
	}
	if s.signers.Key == nil {
		return nil, fmt.Errorf("dapp: key signer not available")
	}
	return &signing.KeyStrategy{Signer: s.signers.Key}, nil
}
