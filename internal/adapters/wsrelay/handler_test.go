package wsrelay

import (
	"bytes"
	"crypto/sha256"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rzr-relay/go-backend/internal/crypto/secp256k1"
	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/relay"
)

func signer(t *testing.T, seed string) *identity.KeySigner {
	t.Helper()
	sum := sha256.Sum256([]byte(seed))
	key, err := secp256k1.NewPrivateKey(sum[:])
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	return identity.NewKeySigner(key)
}

func startServer(t *testing.T, r *relay.Relay) string {
	t.Helper()
	srv := httptest.NewServer(NewHandler(r, Options{}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, frame []byte) {
	t.Helper()
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func login(t *testing.T, url string, client *identity.KeySigner) *websocket.Conn {
	t.Helper()
	ws := dial(t, url)
	write(t, ws, append(client.Address().Bytes(), bytes.Repeat([]byte{0x07}, identity.ClientNonceSize)...))
	challenge := read(t, ws)
	if len(challenge) != identity.NonceSize+identity.SignatureSize {
		t.Fatalf("challenge length %d", len(challenge))
	}
	sig, err := client.SignMessage(challenge[:identity.NonceSize])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	write(t, ws, sig)
	if ack := read(t, ws); !bytes.Equal(ack, []byte{0x01}) {
		t.Fatalf("ack = %x", ack)
	}
	return ws
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSignalingOverWebsocket(t *testing.T) {
	node := signer(t, "relay node")
	r := relay.New(relay.Config{Variant: relay.VariantSignal, Signer: node})
	url := startServer(t, r)

	alice := signer(t, "alice")
	bob := signer(t, "bob")
	wa := login(t, url, alice)
	wb := login(t, url, bob)

	frame := []byte{byte(relay.MessageOffer)}
	frame = append(frame, bob.Address().Bytes()...)
	frame = append(frame, []byte("sdp")...)
	write(t, wa, frame)

	got := read(t, wb)
	want := []byte{byte(relay.MessageOffer)}
	want = append(want, alice.Address().Bytes()...)
	want = append(want, []byte("sdp")...)
	if !bytes.Equal(got, want) {
		t.Fatalf("delivered %x, want %x", got, want)
	}

	_ = wb.Close()
	waitFor(t, func() bool {
		_, ok := r.Registry().Lookup(bob.Address())
		return !ok
	})

	write(t, wa, frame)
	reply := read(t, wa)
	if reply[0] != byte(relay.MessageClientUnavailable) || !bytes.Equal(reply[1:], bob.Address().Bytes()) {
		t.Fatalf("unavailable reply = %x", reply)
	}
}

func TestOversizedFrameDropsConnection(t *testing.T) {
	node := signer(t, "relay node")
	r := relay.New(relay.Config{Variant: relay.VariantSignal, Signer: node})
	ws := dial(t, startServer(t, r))
	write(t, ws, make([]byte, relay.MaxSignalFrame+1))
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected the relay to close the connection")
	}
}

func TestTunnelDepartureOverWebsocket(t *testing.T) {
	node := signer(t, "relay node")
	v := identity.NewVerifier(node.Address(), nil)
	r := relay.New(relay.Config{Variant: relay.VariantTunnel, Signer: node, Verifier: v})
	url := startServer(t, r)

	tunnel := func(client *identity.KeySigner) *websocket.Conn {
		ws := dial(t, url)
		enc := identity.EncodeTimestamp(time.Now().Unix())
		sig, err := client.SignMessage(identity.TimestampMessage(enc[:], node.Address()))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		write(t, ws, append(enc[:], sig...))
		if ack := read(t, ws); !bytes.Equal(ack, []byte{0x01}) {
			t.Fatalf("ack = %x", ack)
		}
		return ws
	}
	alice := signer(t, "alice")
	bob := signer(t, "bob")
	wa := tunnel(alice)
	wb := tunnel(bob)

	write(t, wa, append(bob.Address().Bytes(), 0xde, 0xad))
	if got := read(t, wb); !bytes.Equal(got, []byte{0xde, 0xad}) {
		t.Fatalf("tunnel payload = %x", got)
	}

	_ = wb.Close()
	notice := read(t, wa)
	if notice[0] != 0x00 || !bytes.Equal(notice[1:], bob.Address().Bytes()) {
		t.Fatalf("departure notice = %x", notice)
	}
}
