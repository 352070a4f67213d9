package identity

import (
	"crypto/rand"
	"errors"
	"io"
	"time"
)

const (
	NonceSize       = 24
	ClientNonceSize = 32
	TimestampSize   = 6
	SignatureSize   = 65
	// FreshnessWindow bounds how old a signed timestamp may be.
	FreshnessWindow = 60 * time.Second
	// TimestampProofSize is ts(6) || signature(65).
	TimestampProofSize = TimestampSize + SignatureSize
)

var (
	ErrStaleTimestamp = errors.New("identity: timestamp outside freshness window")
	ErrMalformedProof = errors.New("identity: malformed timestamp proof")
)

// NewNonce draws a relay challenge.
func NewNonce(r io.Reader) ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if r == nil {
		r = rand.Reader
	}
	_, err := io.ReadFull(r, n[:])
	return n, err
}

// EncodeTimestamp writes unix seconds as 6 big-endian bytes.
func EncodeTimestamp(ts int64) [TimestampSize]byte {
	var out [TimestampSize]byte
	for i := TimestampSize - 1; i >= 0; i-- {
		out[i] = byte(ts)
		ts >>= 8
	}
	return out
}

func DecodeTimestamp(raw []byte) int64 {
	var ts int64
	for _, b := range raw[:TimestampSize] {
		ts = ts<<8 | int64(b)
	}
	return ts
}

// TimestampMessage is the payload signed to prove possession of an identity
// to a given relay: ts || relayAddress.
func TimestampMessage(ts []byte, relay Address) []byte {
	out := make([]byte, 0, TimestampSize+AddressSize)
	out = append(out, ts[:TimestampSize]...)
	return append(out, relay[:]...)
}

// Verifier checks timestamp proofs addressed to one relay.
type Verifier struct {
	relay Address
	now   func() time.Time
}

func NewVerifier(relay Address, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{relay: relay, now: now}
}

// Recover returns the signer of a ts || sig proof without checking age.
func (v *Verifier) Recover(proof []byte) (Address, int64, error) {
	if len(proof) < TimestampProofSize {
		return Address{}, 0, ErrMalformedProof
	}
	ts := proof[:TimestampSize]
	sig := proof[TimestampSize:TimestampProofSize]
	addr, err := RecoverAddress(TimestampMessage(ts, v.relay), sig)
	if err != nil {
		return Address{}, 0, err
	}
	return addr, DecodeTimestamp(ts), nil
}

// RecoverFresh is Recover plus ts >= now - FreshnessWindow.
func (v *Verifier) RecoverFresh(proof []byte) (Address, error) {
	addr, ts, err := v.Recover(proof)
	if err != nil {
		return Address{}, err
	}
	if !v.Fresh(ts) {
		return Address{}, ErrStaleTimestamp
	}
	return addr, nil
}

func (v *Verifier) Fresh(ts int64) bool {
	return ts >= v.now().Add(-FreshnessWindow).Unix()
}

func (v *Verifier) Relay() Address {
	return v.relay
}
