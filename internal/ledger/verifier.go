package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rzr-relay/go-backend/internal/identity"
)

const componentName = "ledger"

// ErrInconsistent means the folded history does not reproduce the
// contract's commitment. Identity data must not be served after it.
var ErrInconsistent = errors.New("ledger: on-chain data inconsistency")

// Source is the chain boundary.
type Source interface {
	BlockNumber(ctx context.Context) (uint64, error)
	LatestHash(ctx context.Context) ([32]byte, error)
	History(ctx context.Context) ([]Log, error)
	// Subscribe delivers live events to sink until ctx ends or the
	// subscription fails; the returned channel yields that failure.
	Subscribe(ctx context.Context, sink chan<- Log) (<-chan error, error)
}

// Update is published after each live fold.
type Update struct {
	BlockNumber uint64
	Hash        [32]byte
}

// HashHex is the 0x-prefixed hash.
func (u Update) HashHex() string {
	return "0x" + hex.EncodeToString(u.Hash[:])
}

type Verifier struct {
	src    Source
	trust  *identity.TrustSet
	logger *slog.Logger

	mu        sync.RWMutex
	records   []Record
	hash      [32]byte
	block     uint64
	synced    bool
	listeners []func(Update)
}

func NewVerifier(src Source, trust *identity.TrustSet, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{src: src, trust: trust, logger: logger}
}

// OnUpdate registers fn to run after every live fold. Register before
// Follow starts.
func (v *Verifier) OnUpdate(fn func(Update)) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

// Sync downloads block number, commitment and history concurrently, folds
// the non-removed events and compares the result with the commitment.
func (v *Verifier) Sync(ctx context.Context) error {
	var (
		block   uint64
		latest  [32]byte
		history []Log
	)
	v.logInfo("sync", "downloading blockchain data")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		block, err = v.src.BlockNumber(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = v.src.LatestHash(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = v.src.History(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ledger sync: %w", err)
	}

	records := make([]Record, 0, len(history))
	for _, l := range history {
		if l.Removed {
			continue
		}
		rec, err := EncodeRecord(l)
		if err != nil {
			return fmt.Errorf("ledger sync: block %d: %w", l.BlockNumber, err)
		}
		records = append(records, rec)
	}
	hash := FoldAll(records)
	v.logInfo("sync", "verifying hash", "computed", hex.EncodeToString(hash[:]), "committed", hex.EncodeToString(latest[:]))
	if hash != latest {
		return ErrInconsistent
	}

	v.mu.Lock()
	v.records = records
	v.hash = hash
	v.block = block
	v.synced = true
	v.mu.Unlock()
	for _, r := range records {
		v.admit(r)
	}
	v.logInfo("sync", "ledger verified", "records", len(records), "block", block)
	return nil
}

// Follow folds live events in the order the source delivers them until ctx
// ends or the subscription fails. A late or re-ordered event corrupts the
// chain without detection; see DESIGN.md.
func (v *Verifier) Follow(ctx context.Context) error {
	sink := make(chan Log, 64)
	errc, err := v.src.Subscribe(ctx, sink)
	if err != nil {
		return fmt.Errorf("ledger subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err == nil {
				return nil
			}
			return fmt.Errorf("ledger subscription: %w", err)
		case l := <-sink:
			if err := v.Apply(l); err != nil {
				v.logWarn("follow", "dropping malformed event", "block", l.BlockNumber, "error", err.Error())
			}
		}
	}
}

// Apply folds one live event.
func (v *Verifier) Apply(l Log) error {
	if l.Removed {
		v.logWarn("follow", "live event marked removed; folding as delivered", "block", l.BlockNumber)
	}
	rec, err := EncodeRecord(l)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.hash = Fold(v.hash, rec)
	v.block = l.BlockNumber
	v.records = append(v.records, rec)
	u := Update{BlockNumber: v.block, Hash: v.hash}
	listeners := make([]func(Update), len(v.listeners))
	copy(listeners, v.listeners)
	v.mu.Unlock()

	v.admit(rec)
	for _, fn := range listeners {
		fn(u)
	}
	return nil
}

func (v *Verifier) admit(r Record) {
	if v.trust != nil && r.Kind() == KindIdentityRegistered {
		v.trust.Add(r.Addr2())
	}
}

func (v *Verifier) Synced() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced
}

func (v *Verifier) Latest() Update {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Update{BlockNumber: v.block, Hash: v.hash}
}

// LatestBlock encodes blockNumber(6) || hash(32).
func (v *Verifier) LatestBlock() []byte {
	u := v.Latest()
	var bn [8]byte
	binary.BigEndian.PutUint64(bn[:], u.BlockNumber)
	out := make([]byte, 0, 6+32)
	out = append(out, bn[2:]...)
	return append(out, u.Hash[:]...)
}

// Range returns the records with height < blockNumber <= target. ok is
// false when no record is above height.
func (v *Verifier) Range(height, target uint64) ([]byte, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	start := -1
	for i, r := range v.records {
		if r.BlockNumber() > height {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}
	end := len(v.records)
	for i, r := range v.records {
		if r.BlockNumber() > target {
			end = i
			break
		}
	}
	if end < start {
		end = start
	}
	var buf bytes.Buffer
	for _, r := range v.records[start:end] {
		buf.Write(r[:])
	}
	return buf.Bytes(), true
}

func (v *Verifier) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	v.logger.Info(message, append(base, attrs...)...)
}

func (v *Verifier) logWarn(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", strings.TrimSpace(operation)}
	v.logger.Warn(message, append(base, attrs...)...)
}
