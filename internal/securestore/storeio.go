package securestore

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrExists = errors.New("securestore: file already exists")

// WriteSealedFile seals plaintext and writes it through a temp file and a
// rename. An existing file is never replaced.
func WriteSealedFile(path, passphrase, label string, plaintext []byte) error {
	if _, err := os.Stat(path); err == nil {
		return ErrExists
	}
	sealed, err := Seal(passphrase, label, plaintext)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".seal-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ReadSealedFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(passphrase, raw)
}

// ReadLabel returns the public label of a sealed file.
func ReadLabel(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	env, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return env.Label, nil
}
