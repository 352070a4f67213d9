// Package httpapi serves the relay's websocket, SSE, ledger and
// registration endpoints on one listener.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rzr-relay/go-backend/internal/ledger"
	"rzr-relay/go-backend/internal/platform/ratelimiter"
	"rzr-relay/go-backend/internal/relay"
	"rzr-relay/go-backend/internal/relay/sse"
)

const DefaultAddr = ":8080"

// Ledger is the read side of the ledger verifier.
type Ledger interface {
	Latest() ledger.Update
	LatestBlock() []byte
	Range(height, target uint64) ([]byte, bool)
}

type Registrar interface {
	Eligible() bool
	Register(ctx context.Context, body []byte) error
}

// Deps are the components behind the routes. Nil members leave their
// routes unregistered.
type Deps struct {
	Signal    http.Handler
	Tunnel    http.Handler
	SSE       *sse.Relay
	Ledger    Ledger
	Registrar Registrar
	Metrics   http.Handler
	// Limiter throttles the SSE POST endpoints per client.
	Limiter *ratelimiter.MapLimiter
	// Streams bounds concurrent GET /signals streams.
	Streams        StreamLimits
	AllowedOrigins []string
	Logger         *slog.Logger
	// OnRegistration receives the outcome label of each POST /identity.
	OnRegistration func(result string)
}

type Server struct {
	httpServer *http.Server
	deps       Deps
	streams    *streamLimiter
	origins    originPolicy
	logger     *slog.Logger
}

func NewServer(addr string, deps Deps) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		deps:    deps,
		streams: newStreamLimiter(deps.Streams),
		origins: newOriginPolicy(deps.AllowedOrigins),
		logger:  logger,
	}
	s.routes(mux)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics)
	}
	if s.deps.Signal != nil {
		mux.Handle("/signal", s.deps.Signal)
	}
	if s.deps.Tunnel != nil {
		mux.Handle("/tunnel", s.deps.Tunnel)
	}
	if s.deps.SSE != nil {
		posts := map[string]relay.MessageType{
			"/ping":        relay.MessagePing,
			"/unavailable": relay.MessageClientUnavailable,
			"/offer":       relay.MessageOffer,
			"/answer":      relay.MessageAnswer,
			"/candidate":   relay.MessageCandidate,
		}
		for path, mt := range posts {
			var h http.Handler = s.deps.SSE.HandlePost(mt)
			if s.deps.Limiter != nil {
				h = s.deps.Limiter.Middleware(h)
			}
			mux.Handle(path, s.withCORS(h))
		}
		mux.Handle("/signals", s.withCORS(http.HandlerFunc(s.handleSignals)))
		mux.Handle("/available-peers", s.withCORS(http.HandlerFunc(s.deps.SSE.HandleAvailablePeers)))
	}
	if s.deps.Ledger != nil {
		mux.Handle("/latest-block", s.withCORS(http.HandlerFunc(s.handleLatestBlock)))
		mux.Handle("/event-log", s.withCORS(http.HandlerFunc(s.handleEventLog)))
	}
	if s.deps.Registrar != nil {
		mux.Handle("/identity", s.withCORS(http.HandlerFunc(s.handleIdentity)))
	}
	mux.Handle("/topic/", s.withCORS(http.HandlerFunc(handleNotImplemented)))
	mux.Handle("/storage", s.withCORS(http.HandlerFunc(handleNotImplemented)))
	mux.Handle("/storage/", s.withCORS(http.HandlerFunc(handleNotImplemented)))
}

// Handler exposes the routed mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "component", "httpapi", "addr", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			// Streams outlive the grace period; cut them.
			_ = s.httpServer.Close()
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
