// ion-host is the native-messaging host behind the ION wallet extension.
// The browser launches it with stdin/stdout bound to the extension and it
// serves a loopback HTTP surface for the approval UI.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	hostconfig "github.com/ice-blockchain/ion-chrome-wallet/cmd/ion-host/config"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/approval"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/broker"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/dapp"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/grants"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/transport"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/walletcore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logging.Info("ion-host",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := hostconfig.Load()
	if err != nil {
		logging.Fatal("failed to parse config", "error", err)
	}
	if err = logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logging.Fatal("failed to configure logging", "error", err)
	}

	store := grants.NewStore(cfg.Grants.Path)
	if err = store.Load(); err != nil {
		logging.Error("failed to load grants store", "error", err)
		return
	}
	go func() {
		if err := grants.Watch(ctx, store); err != nil {
			logging.Warn("grants watcher stopped", "error", err)
		}
	}()

	core, err := walletcore.NewClient(cfg.WalletCore.URL)
	if err != nil {
		logging.Error("failed to init wallet-core client", "error", err)
		return
	}

	b := broker.New(nil)
	surface, pairCode, err := approval.NewServer(b, cfg.Approval.PairingTokenPath, cfg.Approval.UIAllowedOrigins)
	if err != nil {
		logging.Error("failed to init approval surface", "error", err)
		return
	}
	b.AttachSurface(surface)
	logging.Info("approval pairing code issued", "code", pairCode)

	svc := dapp.NewService(b, store, cfg.Network, dapp.Signers{
		Hardware:    core,
		Waiter:      core,
		Key:         core,
		UseHardware: cfg.WalletCore.UseHardware,
	}, core, nil)
	router := dapp.NewRouter(svc)

	if err = surface.Start(cfg.Approval.ListenAddr); err != nil {
		logging.Error("approval surface failed to start", "error", err)
		return
	}

	ch := transport.NewNativeChannel(os.Stdin, os.Stdout)
	removeHandler := ch.OnMessage(func(env *jsonrpc.Envelope) {
		if env.Type != jsonrpc.TypeProvider {
			return
		}
		var req jsonrpc.Request
		if err := json.Unmarshal(env.Message, &req); err != nil {
			logging.Debug("dropping malformed request", "error", err)
			return
		}
		if req.Event {
			return
		}

		// Approval-gated requests block until the user decides, so each
		// one is served on its own goroutine.
		go func() {
			resp := router.Dispatch(ctx, &req)
			out, err := jsonrpc.WrapResponse(resp)
			if err != nil {
				logging.Error("failed to wrap response", "id", req.ID, "error", err)
				return
			}
			if err := ch.Post(out); err != nil {
				logging.Error("failed to post response", "id", req.ID, "error", err)
			}
		}()
	})
	defer removeHandler()

	// The browser closing the pipe ends the session.
	runErr := make(chan error, 1)
	go func() { runErr <- ch.Run() }()

	select {
	case err = <-runErr:
		if err != nil {
			logging.Error("native channel error", "error", err)
		} else {
			logging.Info("native channel closed")
		}
	case <-ctx.Done():
		logging.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = surface.Stop(shutdownCtx); err != nil {
		logging.Error("approval surface shutdown failed", "error", err)
	} else {
		logging.Info("approval surface gracefully stopped")
	}
}
