// Package securestore seals small secrets, such as the node key, under a
// passphrase with argon2id and XChaCha20-Poly1305.
package securestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 2
	saltSize        = 16
	filePrefix      = "RZRSEAL2\n"
	kdfName         = "argon2id"
)

var (
	ErrAuthFailed = errors.New("securestore: authentication failed")
	ErrInvalid    = errors.New("securestore: envelope is invalid")
	ErrNotSealed  = errors.New("securestore: data is not a sealed envelope")
)

// KDFParams are stored with each envelope so they can be raised later
// without breaking existing files.
type KDFParams struct {
	Time     uint32 `json:"time"`
	MemoryKB uint32 `json:"memory_kb"`
	Threads  uint8  `json:"threads"`
}

var DefaultKDF = KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}

// Envelope carries a public Label that is authenticated but not encrypted.
type Envelope struct {
	Version    uint32    `json:"version"`
	Label      string    `json:"label,omitempty"`
	KDF        string    `json:"kdf"`
	Params     KDFParams `json:"params"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

func Seal(passphrase, label string, plaintext []byte) ([]byte, error) {
	env, err := SealEnvelope(passphrase, label, plaintext, DefaultKDF)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func SealEnvelope(passphrase, label string, plaintext []byte, params KDFParams) (*Envelope, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt, params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &Envelope{
		Version:    envelopeVersion,
		Label:      label,
		KDF:        kdfName,
		Params:     params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, []byte(label)),
	}, nil
}

// Parse decodes a sealed file without opening it.
func Parse(data []byte) (*Envelope, error) {
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	if env.Version != envelopeVersion || env.KDF != kdfName {
		return nil, ErrInvalid
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX || len(env.Salt) != saltSize {
		return nil, ErrInvalid
	}
	if env.Params.Time == 0 || env.Params.MemoryKB == 0 || env.Params.Threads == 0 {
		return nil, ErrInvalid
	}
	return &env, nil
}

func Open(passphrase string, data []byte) ([]byte, error) {
	env, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return OpenEnvelope(passphrase, env)
}

func OpenEnvelope(passphrase string, env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrInvalid
	}
	key := deriveKey(passphrase, env.Salt, env.Params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(env.Label))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
