package securestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"rzr-relay/go-backend/internal/testutil/fsperm"
)

func TestSealOpenRoundtrip(t *testing.T) {
	data, err := Seal("pass", "0xabc", []byte("node key"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := Open("pass", data)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "node key" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	data, err := Seal("pass", "", []byte("node key"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := Open("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestLabelIsAuthenticated(t *testing.T) {
	data, err := Seal("pass", "0xabc", []byte("node key"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	env, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	env.Label = "0xdef"
	if _, err := OpenEnvelope("pass", env); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for swapped label, got %v", err)
	}
}

func TestOpenTamperedFails(t *testing.T) {
	data, err := Seal("pass", "", []byte("node key"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	data[len(data)-3] ^= 0xFF
	_, err = Open("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed or ErrInvalid, got %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	if _, err := Parse([]byte(`{"version":2}`)); !errors.Is(err, ErrNotSealed) {
		t.Fatalf("expected ErrNotSealed, got %v", err)
	}
	bad, _ := json.Marshal(Envelope{Version: 1, KDF: kdfName})
	if _, err := Parse(append([]byte(filePrefix), bad...)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestSealedFileHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")
	if err := WriteSealedFile(path, "pass", "label", []byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	fsperm.AssertPrivateFile(t, path)
	fsperm.AssertPrivateDir(t, filepath.Dir(path))
	if err := WriteSealedFile(path, "pass", "label", []byte{9}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, err := ReadSealedFile(path, "pass")
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("read = %v, %v", got, err)
	}
	label, err := ReadLabel(path)
	if err != nil || label != "label" {
		t.Fatalf("label = %q, %v", label, err)
	}
}
