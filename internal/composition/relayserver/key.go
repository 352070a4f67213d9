package relayserver

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"rzr-relay/go-backend/internal/config"
	"rzr-relay/go-backend/internal/nodekey"
)

var ErrPassphraseMissing = errors.New("relayserver: key file passphrase is not set")

// ResolveNodeKey prefers an inline hex key over the sealed key file.
func ResolveNodeKey(cfg config.IdentityConfig) (*nodekey.Key, error) {
	if strings.TrimSpace(cfg.KeyHex) != "" {
		key, err := nodekey.ParseHex(cfg.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("relayserver: identity key: %w", err)
		}
		return key, nil
	}
	if strings.TrimSpace(cfg.KeyFile) == "" {
		return nil, config.ErrMissingIdentity
	}
	passphrase := strings.TrimSpace(os.Getenv(cfg.PassphraseEnv))
	if passphrase == "" {
		return nil, fmt.Errorf("%w: set %s", ErrPassphraseMissing, cfg.PassphraseEnv)
	}
	key, err := nodekey.Load(cfg.KeyFile, passphrase)
	if err != nil {
		return nil, fmt.Errorf("relayserver: load %s: %w", cfg.KeyFile, err)
	}
	return key, nil
}
