// Package approval serves the local HTTP API the wallet's own UI uses to
// review and decide queued dApp requests. The broker queues; this server
// presents (FIFO) and posts decisions back.
package approval

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/broker"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/pairing"
)

const pairedTokenHeader = "X-ION-Approval"

const pairExchangeTTL = 60 * time.Second

// longPollWindow bounds a /notifications?since= park.
const longPollWindow = 25 * time.Second

// Server is the approval surface. It implements broker.ApprovalSurface;
// shutting it down drains the broker so callers see a terminal failure
// rather than a silent hang.
type Server struct {
	broker *broker.Broker
	mux    *http.ServeMux

	uiAllowedOrigins map[string]struct{}
	pairingTokenPath string

	pairingsMu sync.Mutex
	pairings   map[string]*pairingEntry

	generation atomic.Uint64
	bumpMu     sync.Mutex
	bumpCh     chan struct{}

	srv *http.Server
	ln  net.Listener
}

// NewServer wires the surface to the broker. uiAllowedOrigins lists the
// browser origins the local UI may be served from.
func NewServer(b *broker.Broker, pairingTokenPath string, uiAllowedOrigins []string) (*Server, string, error) {
	s := &Server{
		broker:           b,
		mux:              http.NewServeMux(),
		pairingTokenPath: pairingTokenPath,
		pairings:         make(map[string]*pairingEntry),
		bumpCh:           make(chan struct{}),
	}

	s.uiAllowedOrigins = make(map[string]struct{}, len(uiAllowedOrigins))
	for _, o := range uiAllowedOrigins {
		o = normalizeOrigin(o)
		if o == "" {
			continue
		}
		s.uiAllowedOrigins[o] = struct{}{}
	}

	localUICors := corsPolicy{
		allowedOrigins: s.uiAllowedOrigins,
		allowMethods:   "GET,OPTIONS",
		allowHeaders:   "", // echo requested
		maxAge:         600,
	}
	pairCors := corsPolicy{
		allowedOrigins: s.uiAllowedOrigins,
		allowMethods:   "POST,OPTIONS",
		allowHeaders:   "",
		maxAge:         600,
	}

	s.mux.HandleFunc("/healthz", s.withCORS(localUICors, s.withLoopbackOnly(s.handleHealth)))
	s.mux.HandleFunc("/status", s.withCORS(localUICors, s.withLoopbackOnly(s.handleStatus)))
	s.mux.HandleFunc("/pair/exchange", s.withCORS(pairCors, s.withLoopbackOnly(s.handlePairExchange)))

	s.mux.HandleFunc("/notifications", s.withPairedGuards(s.handleNotifications))
	s.mux.HandleFunc("/notifications/resolve", s.withPairedGuards(s.handleResolve))
	s.mux.HandleFunc("/notifications/reject", s.withPairedGuards(s.handleReject))

	pairCode, err := s.newPairing()
	if err != nil {
		return nil, "", err
	}
	return s, pairCode, nil
}

// newPairing registers a fresh single-use pair code and returns it for
// display to the user.
func (s *Server) newPairing() (string, error) {
	pairCode, err := pairing.GeneratePairCode()
	if err != nil {
		return "", err
	}
	token, err := pairing.NewSessionToken()
	if err != nil {
		return "", err
	}

	pairID := uuid.NewString()
	s.pairingsMu.Lock()
	s.pairings[pairID] = &pairingEntry{
		CodeHash:  pairing.HashCode(pairCode),
		ExpiresAt: time.Now().Add(pairExchangeTTL),
		Token:     token,
	}
	s.pairingsMu.Unlock()

	logging.Info("approval surface pair code issued", "pair_id", pairID)
	return pairID + ":" + pairCode, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// NotifyNewPending implements broker.ApprovalSurface. The UI long-polls
// the generation counter; bumping it is the whole signal.
func (s *Server) NotifyNewPending(n broker.Notification) {
	gen := s.generation.Add(1)
	s.bumpMu.Lock()
	close(s.bumpCh)
	s.bumpCh = make(chan struct{})
	s.bumpMu.Unlock()
	logging.Info("pending request presented", "id", n.ID, "kind", string(n.Kind), "origin", n.Origin, "generation", gen)
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("approval server error", "error", err)
		}
	}()
	logging.Info("approval surface listening", "addr", ln.Addr().String())
	return nil
}

// URL returns the base URL once started.
func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Stop shuts the surface down and fails every still-pending request with
// the terminal surface-closed error.
func (s *Server) Stop(ctx context.Context) error {
	s.broker.CloseSurface()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// HANDLERS

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	paired := false
	if _, err := loadPairingToken(s.pairingTokenPath); err == nil {
		paired = true
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"paired":     paired,
		"pending":    len(s.broker.Pending()),
		"generation": s.generation.Load(),
	})
}

func (s *Server) handlePairExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pairExchangeReq
	if err := readJSONBody(r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.PairID == "" || req.Code == "" {
		http.Error(w, "missing pair_id or code", http.StatusBadRequest)
		return
	}

	s.pairingsMu.Lock()
	entry, ok := s.pairings[req.PairID]
	if ok && (entry.Used || time.Now().After(entry.ExpiresAt)) {
		ok = false
	}
	if ok && !pairing.VerifyCode(req.Code, entry.CodeHash) {
		s.pairingsMu.Unlock()
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}
	if !ok {
		s.pairingsMu.Unlock()
		http.Error(w, "pair expired", http.StatusGone)
		return
	}
	entry.Used = true
	token := entry.Token
	s.pairingsMu.Unlock()

	if err := writePairingTokenFile(s.pairingTokenPath, token); err != nil {
		logging.Error("persisting pairing token failed", "error", err)
		http.Error(w, "failed to write pairing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, pairExchangeResp{
		OK:     true,
		Token:  token,
		Header: pairedTokenHeader,
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// since=<generation> long-polls: the request parks until the counter
	// moves past the caller's snapshot, or the poll window closes.
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		if since >= s.generation.Load() {
			s.bumpMu.Lock()
			bumped := s.bumpCh
			s.bumpMu.Unlock()
			select {
			case <-bumped:
			case <-time.After(longPollWindow):
			case <-r.Context().Done():
			}
		}
	}

	writeJSON(w, http.StatusOK, notificationsResp{
		OK:         true,
		Generation: s.generation.Load(),
		Pending:    s.broker.Pending(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req resolveReq
	if err := readJSONBody(r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.broker.Resolve(req.ID, req.Decision); err != nil {
		writeJSON(w, http.StatusNotFound, okResp{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, okResp{OK: true})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rejectReq
	if err := readJSONBody(r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	var reason error
	if req.Reason != "" {
		reason = errors.New(req.Reason)
	}
	if err := s.broker.Reject(req.ID, reason); err != nil {
		writeJSON(w, http.StatusNotFound, okResp{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, okResp{OK: true})
}
