package cryptoworker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"rzr-relay/go-backend/internal/crypto/hybrid"
	"rzr-relay/go-backend/internal/identity"
)

func startWorker(t *testing.T, seed string) (*Worker, identity.Address) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w := New(Options{RSABits: 2048})
	go w.Run(ctx)

	key := sha256.Sum256([]byte(seed))
	resp, err := w.Do(ctx, frame(OpInitialize, 1, key[:]))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !bytes.Equal(resp, []byte{0, 0, 0, 1}) {
		t.Fatalf("initialize response %x", resp)
	}
	addr, err := w.Address(ctx)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	return w, addr
}

func frame(op Opcode, id uint32, payload ...[]byte) []byte {
	out := []byte{byte(op), byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

func call(t *testing.T, w *Worker, op Opcode, id uint32, payload ...[]byte) []byte {
	t.Helper()
	resp, err := w.Do(context.Background(), frame(op, id, payload...))
	if err != nil {
		t.Fatalf("%s: %v", op, err)
	}
	want := []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	if !bytes.Equal(resp[:4], want) {
		t.Fatalf("%s: request id %x, want %x", op, resp[:4], want)
	}
	return resp[4:]
}

func TestRequestsBeforeInitializeAnswerEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New(Options{RSABits: 2048})
	go w.Run(ctx)

	resp, err := w.Do(ctx, frame(OpSign, 9, []byte("x")))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !bytes.Equal(resp, []byte{0, 0, 0, 9}) {
		t.Fatalf("response %x, want bare request id", resp)
	}
	if _, err := w.SignMessage(ctx, []byte("x")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("sign before init: %v", err)
	}
}

func TestFrameValidation(t *testing.T) {
	w := New(Options{})
	ctx := context.Background()
	if _, err := w.Do(ctx, make([]byte, MaxRequestSize+1)); !errors.Is(err, ErrRequestTooLarge) {
		t.Fatalf("oversized: %v", err)
	}
	if _, err := w.Do(ctx, []byte{1, 0, 0}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("short: %v", err)
	}
	if _, err := w.Do(ctx, frame(Opcode(7), 1)); !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("unknown opcode: %v", err)
	}
}

func TestSignOpcode(t *testing.T) {
	w, addr := startWorker(t, "node")
	data := []byte("payload")
	out := call(t, w, OpSign, 42, data)
	if len(out) != hybrid.SignedPrefixSize {
		t.Fatalf("sign result length %d", len(out))
	}
	msg := append(append([]byte(nil), out[:identity.TimestampSize]...), data...)
	got, err := identity.RecoverAddress(msg, out[identity.TimestampSize:])
	if err != nil || got != addr {
		t.Fatalf("recovered %s, %v; want %s", got, err, addr)
	}
}

func TestKeyExchangeThroughOpcodes(t *testing.T) {
	alice, aliceID := startWorker(t, "alice")
	bob, bobID := startWorker(t, "bob")

	exported := call(t, bob, OpExportPublicKey, 1, aliceID[:])
	bobSPKI := exported[hybrid.SignedPrefixSize:]

	wrapOut := call(t, alice, OpGenerateAndWrapKey, 2, bobID[:], bobSPKI)
	wrapped := wrapOut[hybrid.SignedPrefixSize:]

	if ok := call(t, bob, OpUnwrapAndSaveKey, 3, aliceID[:], wrapped); !bytes.Equal(ok, []byte{1}) {
		t.Fatalf("unwrap result %x", ok)
	}
	if bad := call(t, bob, OpUnwrapAndSaveKey, 4, aliceID[:], []byte("junk")); !bytes.Equal(bad, []byte{0}) {
		t.Fatalf("unwrap junk result %x", bad)
	}

	msg := []byte("answer sdp")
	enc := call(t, alice, OpSignAndEncrypt, 5, bobID[:], msg)
	ivAndCT := enc[hybrid.SignedPrefixSize:]
	dec := call(t, bob, OpDecrypt, 6, aliceID[:], ivAndCT)
	if !bytes.Equal(dec, msg) {
		t.Fatalf("decrypted %q, want %q", dec, msg)
	}

	tampered := append([]byte(nil), ivAndCT...)
	tampered[len(tampered)-1] ^= 0xff
	if dec := call(t, bob, OpDecrypt, 7, aliceID[:], tampered); len(dec) != 0 {
		t.Fatalf("tampered decrypt returned %x", dec)
	}

	stranger := identity.Address{0xaa}
	if enc := call(t, alice, OpSignAndEncrypt, 8, stranger[:], msg); len(enc) != 0 {
		t.Fatalf("encrypt without key returned %x", enc)
	}
}

func TestNodeSigner(t *testing.T) {
	w, addr := startWorker(t, "relay")
	s, err := NewNodeSigner(context.Background(), w, time.Second)
	if err != nil {
		t.Fatalf("node signer: %v", err)
	}
	if s.Address() != addr {
		t.Fatalf("address %s, want %s", s.Address(), addr)
	}
	sig, err := s.SignMessage([]byte("nonce"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := identity.VerifyAddress([]byte("nonce"), sig, addr); err != nil {
		t.Fatalf("verify: %v", err)
	}
	h := sha256.Sum256([]byte("tx"))
	raw, err := s.SignHash(h[:])
	if err != nil {
		t.Fatalf("sign hash: %v", err)
	}
	if raw[64] > 1 {
		t.Fatalf("raw hash signature v = %d, want 0 or 1", raw[64])
	}
}

func TestStoppedWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(Options{})
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if _, err := w.SignMessage(context.Background(), []byte("x")); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop: %v", err)
	}
}

func TestDoReturnsDeadlineExceeded(t *testing.T) {
	w := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	frame := []byte{byte(OpSign), 0, 0, 0, 7, 'x'}
	out, err := w.Do(ctx, frame)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if out != nil {
		t.Fatalf("expired request must not answer, got %x", out)
	}
}
