// Package server exposes the ownership verification endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/chainproof/nftgate/pkg/config"
	"github.com/chainproof/nftgate/pkg/verify"
)

// OwnershipVerifier runs the verification decision. Implemented by
// *verify.Verifier; fakes implement it in tests.
type OwnershipVerifier interface {
	Verify(ctx context.Context, req verify.Request) (verify.Outcome, error)
}

// Server is the verification gateway.
type Server struct {
	cfg        *config.Config
	verifier   OwnershipVerifier
	mux        *http.ServeMux
	corsOrigin string
}

// New creates a new gateway server.
func New(cfg *config.Config, verifier OwnershipVerifier) *Server {
	s := &Server{
		cfg:        cfg,
		verifier:   verifier,
		mux:        http.NewServeMux(),
		corsOrigin: cfg.CORSOrigin,
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /verifyOwnership", s.handleVerifyOwnership)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if s.corsOrigin == "" {
		return s.mux
	}
	return s.corsMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("Gateway listening on %s", s.cfg.ListenAddr)
	return srv.ListenAndServe()
}

// corsMiddleware wraps a handler with CORS headers for the configured origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

// GET /health -- simple health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// verifyOwnershipRequest is the body of POST /verifyOwnership.
// tokenId accepts a JSON number or a decimal string.
type verifyOwnershipRequest struct {
	Wallet  string  `json:"wallet"`
	TokenID TokenID `json:"tokenId"`
	TxHash  string  `json:"txHash"`
}

// POST /verifyOwnership -- verify payment, balance, or transfer evidence
//
// Request body: { "wallet": "0x...", "tokenId": 42, "txHash": "0x..." }
func (s *Server) handleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	var req verifyOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Wallet == "" || req.TokenID == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "wallet, tokenId and txHash are required")
		return
	}

	if s.verifier == nil {
		log.Printf("[server] no verifier configured")
		writeError(w, http.StatusInternalServerError, "server misconfigured")
		return
	}

	outcome, err := s.verifier.Verify(r.Context(), verify.Request{
		Wallet:  req.Wallet,
		TokenID: string(req.TokenID),
		TxHash:  req.TxHash,
	})
	if errors.Is(err, verify.ErrAlreadyUsed) {
		writeError(w, http.StatusBadRequest, "Transaction already used")
		return
	}
	if err != nil {
		log.Printf("[server] verification error for %s: %v", req.TxHash, err)
		writeError(w, http.StatusInternalServerError, "verification failed unexpectedly")
		return
	}

	if !outcome.Verified {
		writeJSON(w, http.StatusPaymentRequired, s.paymentRequiredResponse(outcome))
		return
	}

	log.Printf("Access granted: wallet=%s token=%s tx=%s payment=%v balance=%v transfer=%v",
		req.Wallet, req.TokenID, req.TxHash,
		outcome.PaymentOK, outcome.OwnsToken, outcome.TransferVerified)

	writeJSON(w, http.StatusOK, s.verifiedResponse(req))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
