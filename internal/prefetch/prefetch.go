// Package prefetch materializes a bounded local media cache for montage
// building: it downloads image/video URLs referenced by exported events into
// the subject's montage directory, within a configured byte ceiling.
package prefetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/otherstuff/craigd/internal/store"
)

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
}

var videoExts = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".webm": {}, ".mkv": {},
}

// IsMediaName reports whether the file name carries a recognized image or
// video extension.
func IsMediaName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := imageExts[ext]; ok {
		return true
	}
	_, ok := videoExts[ext]
	return ok
}

// Options bounds a prefetch run.
type Options struct {
	MaxBytes    int64
	Concurrency int
	Client      *http.Client
	Log         *log.Logger
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o Options) logger() *log.Logger {
	if o.Log != nil {
		return o.Log
	}
	return log.New(io.Discard, "", 0)
}

// Run extracts media URLs from the events, downloads the admissible ones into
// dir with bounded concurrency, and writes the activity manifest (events.json)
// plus the per-URL status file (prefetch.json). The status slice is returned
// in extraction order.
func Run(ctx context.Context, events []store.Event, dir string, opts Options) ([]store.PrefetchStatus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prefetch dir: %w", err)
	}
	if err := store.WriteJSON(filepath.Join(dir, store.MontageEventsFile), events); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	urls := ExtractURLs(events)
	statuses := make([]store.PrefetchStatus, len(urls))

	// claimed tracks destination names taken by this run, so two concurrent
	// downloads cannot race to the same file.
	var mu sync.Mutex
	claimed := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	g.SetLimit(concurrency)

	for i, rawURL := range urls {
		i, rawURL := i, rawURL
		g.Go(func() error {
			statuses[i] = fetchOne(gctx, rawURL, dir, opts, &mu, claimed)
			return nil
		})
	}
	_ = g.Wait()

	if err := store.WriteJSON(filepath.Join(dir, store.PrefetchStatusFile), statuses); err != nil {
		return statuses, fmt.Errorf("write status: %w", err)
	}
	ok := 0
	for _, st := range statuses {
		if st.OK {
			ok++
			bytesTotal.Add(float64(st.Bytes))
			filesTotal.WithLabelValues("ok").Inc()
		} else {
			filesTotal.WithLabelValues("rejected").Inc()
		}
	}
	opts.logger().Printf("cached %d/%d media files in %s", ok, len(urls), dir)
	return statuses, nil
}

func fetchOne(ctx context.Context, rawURL, dir string, opts Options, mu *sync.Mutex, claimed map[string]struct{}) store.PrefetchStatus {
	st := store.PrefetchStatus{URL: rawURL}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		st.Reason = "unparseable url"
		return st
	}

	// best-effort size probe; a missing or failing HEAD is not disqualifying
	if req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil); err == nil {
		if resp, err := opts.client().Do(req); err == nil {
			resp.Body.Close()
			if resp.ContentLength > opts.MaxBytes {
				st.Reason = fmt.Sprintf("advertised %d bytes exceeds limit %d", resp.ContentLength, opts.MaxBytes)
				return st
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	resp, err := opts.client().Do(req)
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		st.Reason = fmt.Sprintf("status %d", resp.StatusCode)
		return st
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !IsMediaName(parsed.Path) && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		st.Reason = "neither extension nor content-type indicates image/video"
		return st
	}

	name := claimName(rawURL, parsed, dir, mu, claimed)
	dest := filepath.Join(dir, name)
	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())

	f, err := os.Create(tmp)
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	// Copy at most one byte past the ceiling: landing there means the stream
	// exceeded the limit regardless of any declared content-length.
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, opts.MaxBytes+1))
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil || n > opts.MaxBytes {
		os.Remove(tmp)
		if n > opts.MaxBytes {
			st.Reason = fmt.Sprintf("stream exceeded limit %d", opts.MaxBytes)
		} else if copyErr != nil {
			st.Reason = copyErr.Error()
		} else {
			st.Reason = closeErr.Error()
		}
		return st
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		st.Reason = err.Error()
		return st
	}

	st.OK = true
	st.File = name
	st.Bytes = n
	opts.logger().Printf("fetched %s -> %s (%d bytes)", rawURL, name, n)
	return st
}

// claimName picks the destination filename: the URL path basename when free,
// otherwise a URL-fingerprint name that is unique and stable per distinct URL.
func claimName(rawURL string, parsed *url.URL, dir string, mu *sync.Mutex, claimed map[string]struct{}) string {
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		base = ""
	}

	mu.Lock()
	defer mu.Unlock()

	taken := func(name string) bool {
		if _, ok := claimed[name]; ok {
			return true
		}
		return store.Exists(filepath.Join(dir, name))
	}

	name := base
	if name == "" || taken(name) {
		ext := strings.ToLower(path.Ext(base))
		name = Fingerprint(rawURL)[:16] + ext
	}
	claimed[name] = struct{}{}
	return name
}
