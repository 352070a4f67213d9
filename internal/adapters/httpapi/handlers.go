package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"rzr-relay/go-backend/internal/platform/ratelimiter"
	"rzr-relay/go-backend/internal/registration"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := map[string]any{"status": "ok"}
	if s.deps.Ledger != nil {
		body["block"] = s.deps.Ledger.Latest().BlockNumber
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	release, ok := s.streams.acquire(ratelimiter.ClientKey(r))
	if !ok {
		http.Error(w, "too many streams", http.StatusTooManyRequests)
		return
	}
	defer release()
	s.deps.SSE.HandleSignals(w, r)
}

func writeBase64(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, base64.StdEncoding.EncodeToString(data))
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeBase64(w, s.deps.Ledger.LatestBlock())
}

// handleEventLog serves records in (blockHeight, blockTarget]. blockHeight
// defaults to 0 and blockTarget to the latest folded block.
func (s *Server) handleEventLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	height, err := parseBlock(q.Get("blockHeight"), 0)
	if err != nil {
		http.Error(w, "invalid blockHeight", http.StatusBadRequest)
		return
	}
	target, err := parseBlock(q.Get("blockTarget"), s.deps.Ledger.Latest().BlockNumber)
	if err != nil {
		http.Error(w, "invalid blockTarget", http.StatusBadRequest)
		return
	}
	records, ok := s.deps.Ledger.Range(height, target)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeBase64(w, records)
}

func parseBlock(raw string, def uint64) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.deps.Registrar.Eligible() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	case http.MethodPost:
		s.handleRegister(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, registration.RequestSize+1))
	if err != nil {
		s.observeRegistration("bad_request")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	err = s.deps.Registrar.Register(r.Context(), body)
	switch {
	case err == nil:
		s.observeRegistration("mined")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, registration.ErrBadRequest):
		s.observeRegistration("bad_request")
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, registration.ErrRateLimited):
		s.observeRegistration("rate_limited")
		w.WriteHeader(http.StatusBadRequest)
	default:
		s.observeRegistration("failed")
		s.logger.Warn("registration failed",
			"component", "httpapi",
			"operation", "register",
			"error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) observeRegistration(result string) {
	if s.deps.OnRegistration != nil {
		s.deps.OnRegistration(result)
	}
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "not implemented", http.StatusNotImplemented)
}
