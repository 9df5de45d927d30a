package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/otherstuff/craigd/config"
	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/store"
)

type stubRunner struct {
	tools   []cvm.Tool
	handler func(tool string, args map[string]any) (string, error)
}

func (s *stubRunner) ListTools(ctx context.Context) ([]cvm.Tool, error) { return s.tools, nil }

func (s *stubRunner) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	if s.handler == nil {
		return "", nil
	}
	return s.handler(tool, args)
}

func testNpub(t *testing.T) string {
	t.Helper()
	pk, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		t.Fatalf("encode npub: %v", err)
	}
	return npub
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, *store.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Address = ":0"
	cfg.Tools.AccessTool = "cashu_access"
	cfg.Prefetch.MaxBytes = 1 << 20
	cfg.Prefetch.Concurrency = 2
	if mutate != nil {
		mutate(cfg)
	}
	st := store.New(t.TempDir())
	runner := &stubRunner{tools: []cvm.Tool{{Name: "cashu_access"}}}
	return New(cfg, st, runner, log.New(io.Discard, "", 0)), st
}

func doJSON(t *testing.T, s *Server, method, path string, payload any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestExportEventsWritesBundlesAndDigest(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t, nil)
	npub := testNpub(t)

	day1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Unix()
	day2 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC).Unix()
	rec := doJSON(t, s, http.MethodPost, "/api/export-events", map[string]any{
		"npub": npub,
		"events": []store.Event{
			{ID: "e2", Pubkey: "pk", CreatedAt: day2, Kind: 1, Content: "second day"},
			{ID: "e1", Pubkey: "pk", CreatedAt: day1, Kind: 1, Content: "first day"},
			{ID: "e3", Pubkey: "pk", CreatedAt: day1 + 60, Kind: 7, Content: "+"},
		},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OK    bool     `json:"ok"`
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || len(resp.Files) != 2 || resp.Files[0] != "250601-events.json" || resp.Files[1] != "250602-events.json" {
		t.Fatalf("response = %+v", resp)
	}

	var bundle []store.Event
	if err := store.ReadJSON(st.DayBundlePath(npub, "250601"), &bundle); err != nil {
		t.Fatalf("read day bundle: %v", err)
	}
	if len(bundle) != 2 || bundle[0].ID != "e1" {
		t.Fatalf("bundle = %+v, want e1 first", bundle)
	}

	// Only short-text content lands in the digest; the kind-7 reaction does not.
	var digest []store.JustTextEntry
	if err := store.ReadJSON(st.JustTextPath(npub), &digest); err != nil {
		t.Fatalf("read digest: %v", err)
	}
	if len(digest) != 2 || digest[0].Content != "first day" || digest[1].Content != "second day" {
		t.Fatalf("digest = %+v", digest)
	}

	waitForFile(t, filepath.Join(st.MontageDir(npub), store.MontageEventsFile))
}

func TestExportEventsValidation(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{name: "bad npub", payload: map[string]any{"npub": "hex123", "events": []store.Event{{Kind: 1}}}},
		{name: "no events", payload: map[string]any{"npub": testNpub(t), "events": []store.Event{}}},
	}
	for _, tc := range tests {
		rec := doJSON(t, s, http.MethodPost, "/api/export-events", tc.payload, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Fatalf("%s: error body = %s", tc.name, rec.Body.String())
		}
	}
}

func TestExportEventsAuth(t *testing.T) {
	t.Parallel()
	secret := "test-secret"
	s, _ := newTestServer(t, func(cfg *config.Config) { cfg.Server.JWTSecret = secret })
	npub := testNpub(t)
	payload := map[string]any{
		"npub":   npub,
		"events": []store.Event{{Pubkey: "pk", CreatedAt: time.Now().Unix(), Kind: 1, Content: "hi"}},
	}

	if rec := doJSON(t, s, http.MethodPost, "/api/export-events", payload, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}

	token, err := SignToken(npub, []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	if rec := doJSON(t, s, http.MethodPost, "/api/export-events", payload, header); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with valid token: %s", rec.Code, rec.Body.String())
	}

	forged, err := SignToken(npub, []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	header = http.Header{"Authorization": []string{"Bearer " + forged}}
	if rec := doJSON(t, s, http.MethodPost, "/api/export-events", payload, header); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for forged token", rec.Code)
	}
}

func TestAccessCheck(t *testing.T) {
	t.Parallel()

	t.Run("grant passthrough", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		s.Runner = &stubRunner{
			tools: []cvm.Tool{{Name: "cashu_access"}},
			handler: func(tool string, args map[string]any) (string, error) {
				if args["encodedToken"] != "cashuA..." {
					t.Errorf("args = %+v", args)
				}
				return `{"decision":"ACCESS_GRANTED","amount":21,"mode":"full"}`, nil
			},
		}
		rec := doJSON(t, s, http.MethodPost, "/api/access-check", map[string]string{"token": "cashuA..."}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var d AccessDecision
		if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if d.Decision != "ACCESS_GRANTED" || d.Amount != 21 || d.Mode != "full" {
			t.Fatalf("decision = %+v", d)
		}
	})

	t.Run("tool failure denies", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		s.Runner = &stubRunner{handler: func(tool string, args map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		}}
		rec := doJSON(t, s, http.MethodPost, "/api/access-check", map[string]string{"token": "x"}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var d AccessDecision
		if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if d.Decision != "ACCESS_DENIED" || d.Reason == "" {
			t.Fatalf("decision = %+v", d)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodPost, "/api/access-check", map[string]string{}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestSummaryFromStoredBundles(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t, nil)
	npub := testNpub(t)

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC).Unix()
	if err := store.WriteJSON(st.DayBundlePath(npub, "250601"), []store.Event{
		{Pubkey: "a", CreatedAt: base, Kind: 1, Content: "x"},
		{Pubkey: "b", CreatedAt: base + 3600, Kind: 7, Content: "+"},
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/summary", map[string]any{"user": npub}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sum := resp.Summary
	if sum.Total != 2 || sum.Authors != 2 || sum.Kinds[1] != 1 || sum.Kinds[7] != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.TimeRange.From != "2025-06-01T08:00:00Z" || sum.TimeRange.To != "2025-06-01T09:00:00Z" {
		t.Fatalf("time range = %+v", sum.TimeRange)
	}
}

func TestSummaryNoEvents(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/summary", map[string]any{"user": testNpub(t)}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file never appeared: %s", path)
}
