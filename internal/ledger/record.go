// Package ledger mirrors the identity contract's event log in memory and
// checks it against the contract's running hash commitment.
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"rzr-relay/go-backend/internal/identity"
)

const (
	RecordSize = 32 + 1 + identity.AddressSize + identity.AddressSize + 32
	// KindIdentityRegistered is the event discriminant whose addr2 is a newly
	// registered identity.
	KindIdentityRegistered byte = 0
	eventDataSize               = 64
	topicSize                   = 32
)

var ErrMalformedLog = errors.New("ledger: malformed event log")

// Record is blockNumber(32) || kind(1) || addr1(20) || addr2(20) || data(32).
type Record [RecordSize]byte

// Log is one contract event as delivered by the chain. Topics holds the
// signature topic followed by the two indexed addresses; Data holds the
// ABI-encoded (uint8 kind, bytes32 data).
type Log struct {
	BlockNumber uint64
	Topics      [][topicSize]byte
	Data        []byte
	Removed     bool
}

func EncodeRecord(l Log) (Record, error) {
	var r Record
	if len(l.Topics) < 3 || len(l.Data) < eventDataSize {
		return r, ErrMalformedLog
	}
	binary.BigEndian.PutUint64(r[24:32], l.BlockNumber)
	r[32] = l.Data[31]
	copy(r[33:53], l.Topics[1][12:])
	copy(r[53:73], l.Topics[2][12:])
	copy(r[73:], l.Data[32:eventDataSize])
	return r, nil
}

// BlockNumber reads the low 64 bits of the 32-byte block field.
func (r Record) BlockNumber() uint64 {
	return binary.BigEndian.Uint64(r[24:32])
}

func (r Record) Kind() byte {
	return r[32]
}

func (r Record) Addr1() identity.Address {
	a, _ := identity.AddressFromBytes(r[33:53])
	return a
}

func (r Record) Addr2() identity.Address {
	a, _ := identity.AddressFromBytes(r[53:73])
	return a
}

// Fold returns SHA-256(prev || r).
func Fold(prev [32]byte, r Record) [32]byte {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(r[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// FoldAll chains records from the zero hash.
func FoldAll(records []Record) [32]byte {
	var h [32]byte
	for _, r := range records {
		h = Fold(h, r)
	}
	return h
}
