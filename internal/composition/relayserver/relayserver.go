// Package relayserver wires the relay components into one process.
package relayserver

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"rzr-relay/go-backend/internal/adapters/ethledger"
	"rzr-relay/go-backend/internal/adapters/httpapi"
	"rzr-relay/go-backend/internal/adapters/wsrelay"
	"rzr-relay/go-backend/internal/config"
	"rzr-relay/go-backend/internal/cryptoworker"
	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/ledger"
	"rzr-relay/go-backend/internal/nodekey"
	"rzr-relay/go-backend/internal/platform/metrics"
	"rzr-relay/go-backend/internal/platform/ratelimiter"
	"rzr-relay/go-backend/internal/registration"
	"rzr-relay/go-backend/internal/relay"
	"rzr-relay/go-backend/internal/relay/sse"
)

// Chain is everything the relay needs from the identity contract.
type Chain interface {
	ledger.Source
	registration.Chain
}

// DialFunc connects to the chain with the node signer.
type DialFunc func(ctx context.Context, cfg config.ChainConfig, signer ethledger.Signer, logger *slog.Logger) (Chain, error)

func DialEthereum(ctx context.Context, cfg config.ChainConfig, signer ethledger.Signer, logger *slog.Logger) (Chain, error) {
	c, err := ethledger.Dial(ctx, cfg.RPCURL, cfg.Contract, signer, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type App struct {
	Address identity.Address
	Server  *httpapi.Server
	Ledger  *ledger.Verifier
	SSE     *sse.Relay
	Signal  *relay.Relay
	Tunnel  *relay.Relay

	logger *slog.Logger
}

// Build starts the crypto worker on ctx, hands it the node key, verifies
// the ledger and assembles the HTTP surface. key is zeroed on return.
func Build(ctx context.Context, cfg config.Config, key *nodekey.Key, dial DialFunc, logger *slog.Logger) (*App, error) {
	defer key.Zero()
	if logger == nil {
		logger = slog.Default()
	}
	reg := metrics.New()

	worker := cryptoworker.New(cryptoworker.Options{
		RSABits: cfg.Worker.RSABits,
		Logger:  logger,
		Observe: reg.ObserveWorker,
	})
	go worker.Run(ctx)

	raw := key.Bytes()
	err := worker.Initialize(ctx, raw)
	for i := range raw {
		raw[i] = 0
	}
	if err != nil {
		return nil, fmt.Errorf("relayserver: initialize worker: %w", err)
	}
	signer, err := cryptoworker.NewNodeSigner(ctx, worker, cfg.Worker.Timeout)
	if err != nil {
		return nil, fmt.Errorf("relayserver: node signer: %w", err)
	}
	logger.Info("node identity loaded", "component", "relayserver", "node_address", signer.Address().Hex())

	chain, err := dial(ctx, cfg.Chain, signer, logger)
	if err != nil {
		return nil, fmt.Errorf("relayserver: dial chain: %w", err)
	}

	trust := identity.NewTrustSet()
	verifier := ledger.NewVerifier(chain, trust, logger)
	syncCtx, cancel := context.WithTimeout(ctx, cfg.Chain.SyncTimeout)
	err = verifier.Sync(syncCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	reg.SetLedgerBlock(verifier.Latest().BlockNumber)

	proofs := identity.NewVerifier(signer.Address(), nil)
	requireRegistered := cfg.RequireRegistered()

	events := sse.New(sse.Config{
		Verifier:          proofs,
		Trust:             trust,
		RequireRegistered: requireRegistered,
		Logger:            logger,
		Metrics:           reg,
	})
	verifier.OnUpdate(func(u ledger.Update) {
		reg.SetLedgerBlock(u.BlockNumber)
		events.Broadcast(sse.Event{Name: sse.HashEvent, Data: u.HashHex()})
	})

	newRelay := func(v relay.Variant) *relay.Relay {
		return relay.New(relay.Config{
			Variant:           v,
			Signer:            signer,
			Verifier:          proofs,
			Trust:             trust,
			RequireRegistered: requireRegistered,
			Logger:            logger,
			Metrics:           reg,
		})
	}
	signal := newRelay(relay.VariantSignal)
	tunnel := newRelay(relay.VariantTunnel)
	wsOpts := wsrelay.Options{Logger: logger, CheckOrigin: httpapi.OriginChecker(cfg.Relay.AllowedOrigins)}

	registrar := registration.NewService(chain,
		ratelimiter.NewSlidingWindow(cfg.Registration.HourlyLimit, ratelimiter.HourlyWindow, nil),
		registration.Options{
			Attempts: cfg.Registration.PollAttempts,
			Interval: cfg.Registration.PollInterval,
			Logger:   logger,
		})

	server := httpapi.NewServer(cfg.Listen, httpapi.Deps{
		Signal:         wsrelay.NewHandler(signal, wsOpts),
		Tunnel:         wsrelay.NewHandler(tunnel, wsOpts),
		SSE:            events,
		Ledger:         verifier,
		Registrar:      registrar,
		Metrics:        reg.Handler(),
		Limiter:        ratelimiter.New(cfg.Relay.ClientRate, cfg.Relay.ClientBurst, 0),
		Streams:        httpapi.StreamLimits{MaxGlobal: cfg.Relay.MaxStreams},
		AllowedOrigins: cfg.Relay.AllowedOrigins,
		Logger:         logger,
		OnRegistration: reg.ObserveRegistration,
	})

	return &App{
		Address: signer.Address(),
		Server:  server,
		Ledger:  verifier,
		SSE:     events,
		Signal:  signal,
		Tunnel:  tunnel,
		logger:  logger,
	}, nil
}

// Run follows the ledger and serves HTTP until ctx ends or either fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Ledger.Follow(gctx)
	})
	g.Go(func() error {
		return a.Server.Run(gctx)
	})
	err := g.Wait()
	a.logger.Info("relay stopped", "component", "relayserver")
	return err
}

// Run resolves the key, dials Ethereum and serves until ctx ends.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	key, err := ResolveNodeKey(cfg.Identity)
	if err != nil {
		return err
	}
	app, err := Build(ctx, cfg, key, DialEthereum, logger)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
