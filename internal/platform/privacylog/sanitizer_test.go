package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	return payload
}

func TestHandlerFingerprintsIdentifiersAndRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")
	logger.Info("session ready",
		"identity", "0xAbCd000000000000000000000000000000000001",
		"key_passphrase", "hunter2",
		"operation", "authenticate")

	payload := decode(t, &buf)
	if _, ok := payload["identity"]; ok {
		t.Fatal("identity should not be logged in the clear")
	}
	fp, _ := payload["identity_fp"].(string)
	if !strings.HasPrefix(fp, "fp_") {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
	if fp != Fingerprint("0xabcd000000000000000000000000000000000001") {
		t.Fatal("fingerprint must ignore hex case")
	}
	if got, _ := payload["key_passphrase"].(string); got != redactedValue {
		t.Fatalf("expected redacted passphrase, got %q", got)
	}
	if got, _ := payload["operation"].(string); got != "authenticate" {
		t.Fatalf("operation = %q", got)
	}
}

func TestWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info").With("target", "0x01")
	logger.Info("forward", slog.Group("peer", slog.String("sender", "0x02"), slog.Int("bytes", 4)))

	out := buf.String()
	if strings.Contains(out, `"target"`) || !strings.Contains(out, `"target_fp"`) {
		t.Fatalf("WithAttrs not sanitized: %s", out)
	}
	if !strings.Contains(out, `"sender_fp"`) || strings.Contains(out, `"0x02"`) {
		t.Fatalf("group not sanitized: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	if ParseLevel("nonsense") != slog.LevelInfo || ParseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("unexpected level parsing")
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("account", "0x03"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "account_fp") {
		t.Fatalf("expected sanitized account key, got %s", buf.String())
	}
}
