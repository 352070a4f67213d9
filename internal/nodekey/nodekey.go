// Package nodekey creates, recovers and stores the relay's secp256k1 key.
package nodekey

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"rzr-relay/go-backend/internal/crypto/secp256k1"
	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/securestore"
)

const hkdfInfoNodeKey = "rzr/node/secp256k1/v1"

// derivedSeedSize leaves 16 bytes over the scalar width for the reduction.
const derivedSeedSize = 48

var (
	ErrInvalidMnemonic    = errors.New("nodekey: invalid mnemonic")
	ErrMnemonicRequired   = errors.New("nodekey: mnemonic is required")
	ErrPassphraseRequired = errors.New("nodekey: passphrase is required")
	ErrAddressMismatch    = errors.New("nodekey: stored address does not match key")
)

type Key struct {
	private *secp256k1.PrivateKey
	address identity.Address
}

func newKey(priv *secp256k1.PrivateKey) *Key {
	return &Key{private: priv, address: identity.FromPublicKey(priv.PublicKey())}
}

func (k *Key) Address() identity.Address {
	return k.address
}

// Bytes returns a copy of the 32-byte scalar.
func (k *Key) Bytes() []byte {
	return k.private.Bytes()
}

func (k *Key) Zero() {
	k.private.Zero()
}

// Generate draws 256 bits of entropy and returns the mnemonic with its key.
func Generate() (string, *Key, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	key, err := FromMnemonic(mnemonic)
	if err != nil {
		return "", nil, err
	}
	return mnemonic, key, nil
}

// FromMnemonic expands the BIP-39 seed with HKDF-SHA256 and reduces it to a
// scalar in [1, n-1].
func FromMnemonic(mnemonic string) (*Key, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" {
		return nil, ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	expanded := make([]byte, derivedSeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoNodeKey)), expanded); err != nil {
		return nil, err
	}
	defer zeroBytes(expanded)
	defer zeroBytes(seed)

	priv, err := secp256k1.HashToPrivateKey(expanded)
	if err != nil {
		return nil, err
	}
	return newKey(priv), nil
}

// ParseHex accepts a 32-byte scalar in hex with an optional 0x prefix.
func ParseHex(s string) (*Key, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("nodekey: decode hex: %w", err)
	}
	defer zeroBytes(raw)
	priv, err := secp256k1.NewPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	return newKey(priv), nil
}

// Save seals the key under passphrase. The address is stored as the
// envelope label so it can be shown without unlocking.
func Save(path, passphrase string, k *Key) error {
	if strings.TrimSpace(passphrase) == "" {
		return ErrPassphraseRequired
	}
	raw := k.Bytes()
	defer zeroBytes(raw)
	return securestore.WriteSealedFile(path, passphrase, k.address.Hex(), raw)
}

func Load(path, passphrase string) (*Key, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrPassphraseRequired
	}
	env, err := readEnvelope(path)
	if err != nil {
		return nil, err
	}
	raw, err := securestore.OpenEnvelope(passphrase, env)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(raw)
	priv, err := secp256k1.NewPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	k := newKey(priv)
	if !strings.EqualFold(env.Label, k.address.Hex()) {
		return nil, ErrAddressMismatch
	}
	return k, nil
}

// StoredAddress reads the address of a key file without the passphrase.
func StoredAddress(path string) (identity.Address, error) {
	label, err := securestore.ReadLabel(path)
	if err != nil {
		return identity.Address{}, err
	}
	return identity.ParseAddress(label)
}

func readEnvelope(path string) (*securestore.Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return securestore.Parse(raw)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
