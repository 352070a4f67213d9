package relayserver

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"rzr-relay/go-backend/internal/adapters/ethledger"
	"rzr-relay/go-backend/internal/config"
	"rzr-relay/go-backend/internal/crypto/secp256k1"
	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/ledger"
	"rzr-relay/go-backend/internal/nodekey"
	"rzr-relay/go-backend/internal/registration"
)

type fakeChain struct {
	block   uint64
	latest  [32]byte
	history []ledger.Log
	live    chan ledger.Log
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.block, nil }
func (f *fakeChain) LatestHash(context.Context) ([32]byte, error) { return f.latest, nil }
func (f *fakeChain) History(context.Context) ([]ledger.Log, error) { return f.history, nil }
func (f *fakeChain) ReceiptMined(context.Context, [32]byte) (bool, error) { return true, nil }

func (f *fakeChain) SubmitRegistration(context.Context, registration.Request) ([32]byte, error) {
	return [32]byte{0x01}, nil
}

func (f *fakeChain) Subscribe(ctx context.Context, sink chan<- ledger.Log) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				errc <- nil
				return
			case l := <-f.live:
				select {
				case sink <- l:
				case <-ctx.Done():
				}
			}
		}
	}()
	return errc, nil
}

func eventLog(block uint64, kind byte, addr byte) ledger.Log {
	topics := make([][32]byte, 3)
	topics[2][31] = addr
	data := make([]byte, 64)
	data[31] = kind
	return ledger.Log{BlockNumber: block, Topics: topics, Data: data}
}

func newChain(t *testing.T) *fakeChain {
	t.Helper()
	l := eventLog(3, 0, 0x11)
	rec, err := ledger.EncodeRecord(l)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &fakeChain{
		block:   4,
		latest:  ledger.FoldAll([]ledger.Record{rec}),
		history: []ledger.Log{l},
		live:    make(chan ledger.Log, 1),
	}
}

func testKey(t *testing.T, seed string) *nodekey.Key {
	t.Helper()
	sum := sha256.Sum256([]byte(seed))
	key, err := nodekey.ParseHex(hex.EncodeToString(sum[:]))
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return key
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Worker.RSABits = 2048
	cfg.Chain.SyncTimeout = 5 * time.Second
	return cfg
}

func dialer(chain Chain) DialFunc {
	return func(context.Context, config.ChainConfig, ethledger.Signer, *slog.Logger) (Chain, error) {
		return chain, nil
	}
}

func TestBuildServesLedgerAndBroadcastsHash(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := newChain(t)
	key := testKey(t, "relay node")
	want := key.Address()
	app, err := Build(ctx, testConfig(), key, dialer(chain), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if app.Address != want {
		t.Fatalf("address %s, want %s", app.Address, want)
	}
	go func() { _ = app.Ledger.Follow(ctx) }()

	srv := httptest.NewServer(app.Server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/latest-block")
	if err != nil {
		t.Fatalf("latest-block: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	raw, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil || len(raw) != 38 || raw[5] != 4 || string(raw[6:]) != string(chain.latest[:]) {
		t.Fatalf("latest-block = %x (%v)", raw, err)
	}

	client := newSigner(t, "client")
	ts := time.Now().Unix()
	enc := identity.EncodeTimestamp(ts)
	sig, err := client.SignMessage(identity.TimestampMessage(enc[:], app.Address))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	q := url.Values{}
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("signature", base64.StdEncoding.EncodeToString(sig))
	stream, err := http.Get(srv.URL + "/signals?" + q.Encode())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Body.Close()
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("stream status %d", stream.StatusCode)
	}

	chain.live <- eventLog(10, 0, 0x22)

	reader := bufio.NewReader(stream.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
	if lines[0] != "event: hash" || lines[1] != "data: "+app.Ledger.Latest().HashHex() {
		t.Fatalf("hash event = %q", lines)
	}
	if app.Ledger.Latest().BlockNumber != 10 {
		t.Fatalf("block = %d", app.Ledger.Latest().BlockNumber)
	}
}

func TestBuildFailsOnInconsistentLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chain := newChain(t)
	chain.latest[0] ^= 0xff
	_, err := Build(ctx, testConfig(), testKey(t, "relay node"), dialer(chain), nil)
	if !errors.Is(err, ledger.ErrInconsistent) {
		t.Fatalf("build error = %v", err)
	}
}

func TestResolveNodeKey(t *testing.T) {
	key := testKey(t, "resolve")
	got, err := ResolveNodeKey(config.IdentityConfig{KeyHex: "0x" + hex.EncodeToString(key.Bytes())})
	if err != nil || got.Address() != key.Address() {
		t.Fatalf("hex key = %v, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "node.key")
	if err := nodekey.Save(path, "pass", key); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg := config.IdentityConfig{KeyFile: path, PassphraseEnv: "RZR_TEST_KEY_PASSPHRASE"}
	if _, err := ResolveNodeKey(cfg); !errors.Is(err, ErrPassphraseMissing) {
		t.Fatalf("missing passphrase = %v", err)
	}
	t.Setenv("RZR_TEST_KEY_PASSPHRASE", "pass")
	got, err = ResolveNodeKey(cfg)
	if err != nil || got.Address() != key.Address() {
		t.Fatalf("file key = %v, %v", got, err)
	}
	if _, err := ResolveNodeKey(config.IdentityConfig{}); !errors.Is(err, config.ErrMissingIdentity) {
		t.Fatalf("no identity = %v", err)
	}
}

func newSigner(t *testing.T, seed string) *identity.KeySigner {
	t.Helper()
	sum := sha256.Sum256([]byte(seed))
	priv, err := secp256k1.NewPrivateKey(sum[:])
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return identity.NewKeySigner(priv)
}
