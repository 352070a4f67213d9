package sse

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rzr-relay/go-backend/internal/relay"
)

// HeartbeatInterval is how often an idle stream receives a comment line.
var HeartbeatInterval = 20 * time.Second

// HandlePost serves POST /ping, /offer, /answer, /candidate and
// /unavailable.
func (r *Relay) HandlePost(mt relay.MessageType) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, MaxEnvelope+1))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		switch err := r.Deliver(mt, body); {
		case err == nil:
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, ErrBadLength):
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, ErrNotRegistered):
			w.WriteHeader(http.StatusUnauthorized)
		case errors.Is(err, ErrTargetNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, ErrTargetBusy):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// HandleSignals serves GET /signals?timestamp=<unix>&signature=<base64>.
func (r *Relay) HandleSignals(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}
	q := req.URL.Query()
	ts, err := strconv.ParseInt(strings.TrimSpace(q.Get("timestamp")), 10, 64)
	if err != nil || ts < 0 {
		http.Error(w, "invalid timestamp", http.StatusBadRequest)
		return
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(q.Get("signature")))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	sub, err := r.Subscribe(ts, sig)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	defer r.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-sub.Done():
			return
		case evt := <-sub.Events():
			if err := writeEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// HandleAvailablePeers serves GET /available-peers.
func (r *Relay) HandleAvailablePeers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, base64.StdEncoding.EncodeToString(r.AvailablePeers()))
}

func writeEvent(w io.Writer, evt Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, evt.Data)
	return err
}
