package watch

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/store"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testSubject(t *testing.T) (npub, hex string) {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	npub, err = nip19.EncodePublicKey(pk)
	if err != nil {
		t.Fatalf("encode npub: %v", err)
	}
	return npub, pk
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(t.TempDir())
}

type stubCall struct {
	Tool string
	Args map[string]any
}

// stubRunner satisfies cvm.Runner with a scripted handler.
type stubRunner struct {
	mu      sync.Mutex
	tools   []cvm.Tool
	listErr error
	calls   []stubCall
	handler func(tool string, args map[string]any) (string, error)
}

func (s *stubRunner) ListTools(ctx context.Context) ([]cvm.Tool, error) {
	return s.tools, s.listErr
}

func (s *stubRunner) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, stubCall{Tool: tool, Args: args})
	s.mu.Unlock()
	if s.handler == nil {
		return "", nil
	}
	return s.handler(tool, args)
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
