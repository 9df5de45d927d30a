package prefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/otherstuff/craigd/internal/store"
)

func TestExtractURLs(t *testing.T) {
	t.Parallel()
	events := []store.Event{
		{
			Content: "check this https://cdn.example.com/pics/a.jpg, and http://example.com/clip.mp4!",
			Tags:    [][]string{{"imeta", "https://cdn.example.com/pics/b.png"}, {"t", "running"}},
		},
		{Content: "again https://cdn.example.com/pics/a.jpg"},
	}
	got := ExtractURLs(events)
	want := []string{
		"https://cdn.example.com/pics/a.jpg",
		"http://example.com/clip.mp4",
		"https://cdn.example.com/pics/b.png",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("url %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunByteCeiling(t *testing.T) {
	t.Parallel()
	big := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		// no Content-Length known up front; stream past the ceiling
		for i := 0; i < 16; i++ {
			if _, err := w.Write([]byte(big)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	events := []store.Event{{Content: srv.URL + "/huge.mp4"}}
	statuses, err := Run(context.Background(), events, dir, Options{MaxBytes: 1024, Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(statuses) != 1 || statuses[0].OK {
		t.Fatalf("oversized download must be rejected: %+v", statuses)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if IsMediaName(e.Name()) || strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("partial or full media file left behind: %s", e.Name())
		}
	}
}

func TestRunRejectsAdvertisedOversize(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "99999999")
			w.Header().Set("Content-Type", "video/mp4")
			return
		}
		t.Errorf("GET must not be issued after oversized HEAD")
	}))
	defer srv.Close()

	statuses, err := Run(context.Background(), []store.Event{{Content: srv.URL + "/big.mp4"}}, t.TempDir(), Options{MaxBytes: 1024, Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if statuses[0].OK || !strings.Contains(statuses[0].Reason, "exceeds limit") {
		t.Fatalf("expected advertised-size rejection, got %+v", statuses[0])
	}
}

func TestRunCollisionNaming(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("image-bytes-for-" + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	events := []store.Event{
		{Content: srv.URL + "/alpha/photo.jpg " + srv.URL + "/beta/photo.jpg"},
	}
	statuses, err := Run(context.Background(), events, dir, Options{MaxBytes: 1 << 20, Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(statuses) != 2 || !statuses[0].OK || !statuses[1].OK {
		t.Fatalf("both downloads must succeed: %+v", statuses)
	}
	if statuses[0].File == statuses[1].File {
		t.Fatalf("colliding basenames must yield distinct files, both got %q", statuses[0].File)
	}
	for _, st := range statuses {
		data, err := os.ReadFile(filepath.Join(dir, st.File))
		if err != nil {
			t.Fatalf("read %s: %v", st.File, err)
		}
		if len(data) == 0 {
			t.Fatalf("empty file %s", st.File)
		}
	}
}

func TestRunRejectsNonMedia(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	statuses, err := Run(context.Background(), []store.Event{{Content: srv.URL + "/page"}}, t.TempDir(), Options{MaxBytes: 1 << 20, Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if statuses[0].OK {
		t.Fatalf("non-media content must be rejected: %+v", statuses[0])
	}
}

func TestRunWritesManifestAndStatus(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	events := []store.Event{{ID: "e1", Content: "no links here"}}
	if _, err := Run(context.Background(), events, dir, Options{MaxBytes: 1024, Concurrency: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var manifest []store.Event
	if err := store.ReadJSON(filepath.Join(dir, store.MontageEventsFile), &manifest); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if len(manifest) != 1 || manifest[0].ID != "e1" {
		t.Fatalf("manifest mismatch: %+v", manifest)
	}
	var statuses []store.PrefetchStatus
	if err := store.ReadJSON(filepath.Join(dir, store.PrefetchStatusFile), &statuses); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 0 {
		t.Fatalf("expected empty status list, got %+v", statuses)
	}
}
