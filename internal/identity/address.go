// Package identity derives 20-byte peer addresses from secp256k1 keys and
// implements the domain-separated signatures and challenges used to bind a
// connection to an address.
package identity

import (
	"encoding/hex"
	"errors"
	"strings"

	"rzr-relay/go-backend/internal/crypto/keccak"
	"rzr-relay/go-backend/internal/crypto/secp256k1"
)

const AddressSize = 20

var ErrInvalidAddress = errors.New("identity: invalid address")

// Address is the last 20 bytes of Keccak-256 over the 64-byte uncompressed
// public key (without the 0x04 prefix). It is the only routing key.
type Address [AddressSize]byte

func FromPublicKey(pub *secp256k1.PublicKey) Address {
	raw := pub.SerializeUncompressed()
	sum := keccak.Sum256(raw[1:])
	var a Address
	copy(a[:], sum[12:])
	return a
}

// AddressFromBytes copies exactly 20 bytes.
func AddressFromBytes(raw []byte) (Address, error) {
	var a Address
	if len(raw) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], raw)
	return a, nil
}

// ParseAddress accepts hex with or without the 0x prefix, in any case.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	return AddressFromBytes(raw)
}

// Hex returns the lower-case 0x-prefixed form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool {
	return a == Address{}
}
