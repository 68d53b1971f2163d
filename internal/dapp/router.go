package dapp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/broker"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/jsonrpc"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// Router maps inbound wire requests onto the service and shapes replies.
type Router struct {
	svc *Service
}

func NewRouter(svc *Service) *Router { return &Router{svc: svc} }

// Dispatch handles one request and always produces a response for its id.
func (r *Router) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	result, err := r.dispatch(ctx, req)
	if err != nil {
		logging.Info("request failed", "id", req.ID, "method", req.Method, "origin", req.Origin, "error", err)
		return jsonrpc.NewError(req.ID, codeFor(err), err.Error())
	}
	raw, merr := json.Marshal(result)
	if merr != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, merr.Error())
	}
	return jsonrpc.NewResult(req.ID, raw)
}

func (r *Router) dispatch(ctx context.Context, req *jsonrpc.Request) (any, error) {
	switch req.Method {
	case "ping":
		return "pong", nil

	case string(broker.KindConnect):
		return r.svc.Connect(ctx, req.Origin, logoParam(req))

	case string(broker.KindDisconnect):
		if err := r.svc.Disconnect(ctx, req.Origin); err != nil {
			return nil, err
		}
		return true, nil

	case string(broker.KindSendTransaction):
		payload, err := transactionParam(req)
		if err != nil {
			return nil, err
		}
		return r.svc.SendTransaction(ctx, req.Origin, logoParam(req), payload)

	default:
		// Unknown methods go through the broker so the failure carries the
		// protocol's unsupported-method error.
		_, _, err := r.svc.broker.Submit(broker.Kind(req.Method), req.Origin, "", nil)
		if err == nil {
			err = broker.ErrUnsupportedMethod
		}
		return nil, err
	}
}

func transactionParam(req *jsonrpc.Request) (tonconnect.TransactionPayload, error) {
	var payload tonconnect.TransactionPayload
	if len(req.Params) == 0 {
		return payload, tonconnect.ErrNoMessages
	}
	raw, err := json.Marshal(req.Params[0])
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// logoParam extracts the optional tab-logo URL some pages attach as a
// trailing string parameter.
func logoParam(req *jsonrpc.Request) string {
	if len(req.Params) == 0 {
		return ""
	}
	if s, ok := req.Params[len(req.Params)-1].(string); ok {
		return s
	}
	return ""
}

func codeFor(err error) int {
	switch {
	case errors.Is(err, broker.ErrUnsupportedMethod):
		return jsonrpc.CodeMethodNotFound
	case errors.Is(err, tonconnect.ErrNoMessages):
		return jsonrpc.CodeInvalidParams
	default:
		return jsonrpc.CodeInternalError
	}
}
