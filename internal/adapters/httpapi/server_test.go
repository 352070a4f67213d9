package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/ledger"
	"rzr-relay/go-backend/internal/platform/ratelimiter"
	"rzr-relay/go-backend/internal/registration"
	"rzr-relay/go-backend/internal/relay/sse"
)

type fakeLedger struct {
	block   uint64
	records map[[2]uint64][]byte
}

func (f *fakeLedger) Latest() ledger.Update {
	return ledger.Update{BlockNumber: f.block, Hash: [32]byte{0xab}}
}

func (f *fakeLedger) LatestBlock() []byte {
	return append([]byte{0, 0, 0, 0, 0, byte(f.block)}, make([]byte, 32)...)
}

func (f *fakeLedger) Range(height, target uint64) ([]byte, bool) {
	rec, ok := f.records[[2]uint64{height, target}]
	return rec, ok
}

type fakeRegistrar struct {
	mu       sync.Mutex
	eligible bool
	err      error
	bodies   [][]byte
	outcomes []string
}

func (f *fakeRegistrar) Eligible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eligible
}

func (f *fakeRegistrar) Register(_ context.Context, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeRegistrar) observe(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, result)
}

func (f *fakeRegistrar) set(eligible bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eligible = eligible
	f.err = err
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer("", deps).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body io.Reader, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func TestHealthAndNotImplemented(t *testing.T) {
	srv := newTestServer(t, Deps{Ledger: &fakeLedger{block: 9}})
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"block":9`) {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}
	for _, path := range []string{"/topic/abc", "/storage", "/storage/x"} {
		if resp, _ := do(t, http.MethodGet, srv.URL+path, nil, nil); resp.StatusCode != http.StatusNotImplemented {
			t.Fatalf("%s = %d", path, resp.StatusCode)
		}
	}
}

func TestLedgerEndpoints(t *testing.T) {
	led := &fakeLedger{block: 5, records: map[[2]uint64][]byte{
		{0, 5}: []byte("all"),
		{2, 3}: []byte("some"),
	}}
	srv := newTestServer(t, Deps{Ledger: led})

	resp, body := do(t, http.MethodGet, srv.URL+"/latest-block", nil, nil)
	raw, err := base64.StdEncoding.DecodeString(body)
	if resp.StatusCode != http.StatusOK || err != nil || len(raw) != 38 || raw[5] != 5 {
		t.Fatalf("latest-block = %d %q", resp.StatusCode, body)
	}

	cases := []struct {
		query  string
		status int
		want   string
	}{
		{"", http.StatusOK, "all"},
		{"?blockHeight=2&blockTarget=3", http.StatusOK, "some"},
		{"?blockHeight=7", http.StatusNotFound, ""},
		{"?blockHeight=x", http.StatusBadRequest, ""},
		{"?blockTarget=-1", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		resp, body := do(t, http.MethodGet, srv.URL+"/event-log"+tc.query, nil, nil)
		if resp.StatusCode != tc.status {
			t.Fatalf("event-log%s status = %d, want %d", tc.query, resp.StatusCode, tc.status)
		}
		if tc.want != "" {
			if got, _ := base64.StdEncoding.DecodeString(body); string(got) != tc.want {
				t.Fatalf("event-log%s body = %q", tc.query, got)
			}
		}
	}
}

func TestIdentityEndpoint(t *testing.T) {
	reg := &fakeRegistrar{eligible: true}
	srv := newTestServer(t, Deps{Registrar: reg, OnRegistration: reg.observe})

	if resp, _ := do(t, http.MethodGet, srv.URL+"/identity", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("GET eligible = %d", resp.StatusCode)
	}
	reg.set(false, nil)
	if resp, _ := do(t, http.MethodGet, srv.URL+"/identity", nil, nil); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("GET not eligible = %d", resp.StatusCode)
	}

	cases := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{registration.ErrBadRequest, http.StatusBadRequest},
		{registration.ErrRateLimited, http.StatusBadRequest},
		{registration.ErrNotMined, http.StatusInternalServerError},
		{errors.New("rpc down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		reg.set(false, tc.err)
		resp, _ := do(t, http.MethodPost, srv.URL+"/identity", strings.NewReader(strings.Repeat("a", 105)), nil)
		if resp.StatusCode != tc.status {
			t.Fatalf("POST with %v = %d, want %d", tc.err, resp.StatusCode, tc.status)
		}
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.bodies) != len(cases) || len(reg.bodies[0]) != 105 {
		t.Fatalf("registrar saw %d bodies", len(reg.bodies))
	}
	want := []string{"mined", "bad_request", "rate_limited", "failed", "failed"}
	if strings.Join(reg.outcomes, ",") != strings.Join(want, ",") {
		t.Fatalf("outcomes = %v", reg.outcomes)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, Deps{Ledger: &fakeLedger{}, AllowedOrigins: []string{"https://app.example/"}})
	resp, _ := do(t, http.MethodOptions, srv.URL+"/latest-block", nil, map[string]string{"Origin": "https://app.example"})
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight = %d %v", resp.StatusCode, resp.Header)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/latest-block", nil, map[string]string{"Origin": "https://evil.example"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin = %d", resp.StatusCode)
	}
	if !newOriginPolicy(nil).Allows("https://any.example") || !newOriginPolicy([]string{"*"}).Allows("x") {
		t.Fatal("empty or wildcard list must allow every origin")
	}
}

func TestSSEPostIsRateLimited(t *testing.T) {
	relayAddr := identity.Address{0x01}
	s := sse.New(sse.Config{Verifier: identity.NewVerifier(relayAddr, nil)})
	limiter := ratelimiter.New(0.001, 1, time.Minute)
	srv := newTestServer(t, Deps{SSE: s, Limiter: limiter})

	resp, _ := do(t, http.MethodPost, srv.URL+"/offer", strings.NewReader("short"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("first post = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/offer", strings.NewReader("short"), nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second post = %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodGet, srv.URL+"/available-peers", nil, nil)
	if resp.StatusCode != http.StatusOK || body != "" {
		t.Fatalf("available-peers = %d %q", resp.StatusCode, body)
	}
}

func TestStreamLimiter(t *testing.T) {
	l := newStreamLimiter(StreamLimits{MaxGlobal: 2, MaxPerClient: 1})
	relA, ok := l.acquire("a")
	if !ok {
		t.Fatal("first stream for a rejected")
	}
	if _, ok := l.acquire("a"); ok {
		t.Fatal("second stream for a must be rejected")
	}
	relB, ok := l.acquire("b")
	if !ok {
		t.Fatal("first stream for b rejected")
	}
	if _, ok := l.acquire("c"); ok {
		t.Fatal("global limit must reject c")
	}
	relA()
	relA()
	if _, ok := l.acquire("c"); !ok {
		t.Fatal("release must free a global slot")
	}
	relB()
	if l.global != 1 || len(l.byClient) != 1 {
		t.Fatalf("global=%d clients=%d", l.global, len(l.byClient))
	}
}
