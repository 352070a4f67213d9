package hybrid

import (
	"bytes"
	"crypto/sha256"
	"testing"
	"time"

	"rzr-relay/go-backend/internal/crypto/secp256k1"
	"rzr-relay/go-backend/internal/identity"
)

type peer struct {
	signer *identity.KeySigner
	engine *Engine
}

func newPeer(t *testing.T, name string) peer {
	t.Helper()
	sum := sha256.Sum256([]byte(name))
	key, err := secp256k1.NewPrivateKey(sum[:])
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	rsaKey, err := GenerateRSAKey(2048, nil)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	signer := identity.NewKeySigner(key)
	now := time.Unix(1_700_000_000, 0)
	return peer{
		signer: signer,
		engine: NewEngine(signer, rsaKey, Options{Now: func() time.Time { return now }}),
	}
}

func exchange(t *testing.T, a, b peer) {
	t.Helper()
	spki, err := b.engine.PublicKeySPKI()
	if err != nil {
		t.Fatalf("spki: %v", err)
	}
	out, err := a.engine.WrapKey(b.signer.Address(), spki)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	wrapped := out[SignedPrefixSize:]
	got, err := identity.RecoverAddress(concat(out[:identity.TimestampSize], b.signer.Address().Bytes(), wrapped), out[identity.TimestampSize:SignedPrefixSize])
	if err != nil || got != a.signer.Address() {
		t.Fatalf("wrap signature recovered %s, %v", got, err)
	}
	if !b.engine.UnwrapKey(a.signer.Address(), wrapped) {
		t.Fatal("unwrap failed")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := newPeer(t, "alice"), newPeer(t, "bob")
	exchange(t, alice, bob)

	msg := []byte("offer sdp")
	out, err := alice.engine.EncryptFor(bob.signer.Address(), msg)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	iv := out[SignedPrefixSize : SignedPrefixSize+IVSize]
	ct := out[SignedPrefixSize+IVSize:]
	got := bob.engine.DecryptFrom(alice.signer.Address(), iv, ct)
	if !bytes.Equal(got, msg) {
		t.Fatalf("decrypted %q, want %q", got, msg)
	}

	signed := concat(out[:identity.TimestampSize], msg)
	signer, err := identity.RecoverAddress(signed, out[identity.TimestampSize:SignedPrefixSize])
	if err != nil || signer != alice.signer.Address() {
		t.Fatalf("plaintext signature recovered %s, %v", signer, err)
	}
}

func TestDecryptTamperedYieldsEmpty(t *testing.T) {
	alice, bob := newPeer(t, "alice"), newPeer(t, "bob")
	exchange(t, alice, bob)

	out, err := alice.engine.EncryptFor(bob.signer.Address(), []byte("candidate"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	iv := out[SignedPrefixSize : SignedPrefixSize+IVSize]
	ct := append([]byte(nil), out[SignedPrefixSize+IVSize:]...)
	for i := range ct {
		mutated := append([]byte(nil), ct...)
		mutated[i] ^= 0x01
		if got := bob.engine.DecryptFrom(alice.signer.Address(), iv, mutated); got != nil {
			t.Fatalf("byte %d: tampered ciphertext decrypted to %q", i, got)
		}
	}
	if got := bob.engine.DecryptFrom(alice.signer.Address(), iv[:11], ct); got != nil {
		t.Fatal("short iv must yield empty result")
	}
}

func TestMissingKeyYieldsEmpty(t *testing.T) {
	alice := newPeer(t, "alice")
	stranger := newPeer(t, "stranger").signer.Address()
	out, err := alice.engine.EncryptFor(stranger, []byte("hi"))
	if err != nil || out != nil {
		t.Fatalf("encrypt without key = %x, %v", out, err)
	}
	if got := alice.engine.DecryptFrom(stranger, make([]byte, IVSize), []byte("xx")); got != nil {
		t.Fatal("decrypt without key must be empty")
	}
}

func TestUnwrapGarbageFails(t *testing.T) {
	alice := newPeer(t, "alice")
	if alice.engine.UnwrapKey(identity.Address{1}, []byte("not a wrapped key")) {
		t.Fatal("garbage must not unwrap")
	}
	if alice.engine.HasKey(identity.Address{1}) {
		t.Fatal("failed unwrap must not store a key")
	}
	if _, err := alice.engine.WrapKey(identity.Address{1}, []byte("bad spki")); err == nil {
		t.Fatal("bad spki must fail")
	}
}

func TestExportPublicKeyIsSigned(t *testing.T) {
	alice := newPeer(t, "alice")
	id := identity.Address{7}
	out, err := alice.engine.ExportPublicKey(id)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	spki, _ := alice.engine.PublicKeySPKI()
	if !bytes.Equal(out[SignedPrefixSize:], spki) {
		t.Fatal("export must end with the spki")
	}
	signed := concat(out[:identity.TimestampSize], id[:], spki)
	got, err := identity.RecoverAddress(signed, out[identity.TimestampSize:SignedPrefixSize])
	if err != nil || got != alice.signer.Address() {
		t.Fatalf("export signature recovered %s, %v", got, err)
	}
	if ts := identity.DecodeTimestamp(out); ts != 1_700_000_000 {
		t.Fatalf("timestamp %d", ts)
	}
}
