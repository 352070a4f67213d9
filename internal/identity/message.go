package identity

import (
	"strconv"

	"rzr-relay/go-backend/internal/crypto/keccak"
)

const (
	personalPrefix = "\x19Ethereum Signed Message:\n"
	// DomainTag is prepended to every application message before hashing so
	// relay signatures cannot be replayed as plain personal messages.
	DomainTag = "RzR"
)

// HashMessage returns keccak256(prefix || len(tag||m) || tag || m).
func HashMessage(m []byte) [32]byte {
	n := strconv.Itoa(len(m) + len(DomainTag))
	return keccak.Sum256([]byte(personalPrefix), []byte(n), []byte(DomainTag), m)
}

// HashPersonalMessage is the undecorated personal-message hash. Only the
// registration payload uses it, because the identity contract verifies it.
func HashPersonalMessage(m []byte) [32]byte {
	n := strconv.Itoa(len(m))
	return keccak.Sum256([]byte(personalPrefix), []byte(n), m)
}
