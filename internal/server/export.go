package server

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/otherstuff/craigd/internal/prefetch"
	"github.com/otherstuff/craigd/internal/store"
)

type exportRequest struct {
	Npub   string        `json:"npub"`
	Events []store.Event `json:"events"`
	Token  string        `json:"token,omitempty"`
}

type exportResponse struct {
	OK           bool     `json:"ok"`
	Files        []string `json:"files"`
	JustTextPath string   `json:"just_text_path"`
}

// exportEvents ingests a subject's raw events: per-day bundles, the flattened
// text digest the daily watcher consumes, and an async media prefetch into the
// montage directory.
func (s *Server) exportEvents(c echo.Context) error {
	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !strings.HasPrefix(req.Npub, "npub1") {
		return echo.NewHTTPError(http.StatusBadRequest, "npub must be bech32 npub1...")
	}
	if len(req.Events) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "events must be a non-empty array")
	}
	if err := s.requireAuth(c, req.Token); err != nil {
		return err
	}

	days := bucketByDay(req.Events)
	tokens := make([]string, 0, len(days))
	for day := range days {
		tokens = append(tokens, day)
	}
	sort.Strings(tokens)

	var files []string
	digest := make([]store.JustTextEntry, 0, len(tokens))
	for _, day := range tokens {
		events := days[day]
		path := s.Store.DayBundlePath(req.Npub, day)
		if err := store.WriteJSON(path, events); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		files = append(files, store.DayFileName(day))
		digest = append(digest, store.JustTextEntry{
			Filename: store.DayFileName(day),
			Content:  joinTextContent(events),
			Pubkey:   events[0].Pubkey,
		})
	}

	justTextPath := s.Store.JustTextPath(req.Npub)
	if err := store.WriteJSON(justTextPath, digest); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Media caching runs detached from the request: export must stay fast and
	// a slow or dead media host must not fail the ingest.
	montageDir := s.Store.MontageDir(req.Npub)
	events := req.Events
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := prefetch.Run(ctx, events, montageDir, prefetch.Options{
			MaxBytes:    s.Cfg.Prefetch.MaxBytes,
			Concurrency: s.Cfg.Prefetch.Concurrency,
			Log:         s.Log,
		}); err != nil {
			s.Log.Printf("prefetch for %s failed: %v", req.Npub, err)
		}
	}()

	s.Log.Printf("exported %d events for %s across %d days", len(req.Events), req.Npub, len(tokens))
	return c.JSON(http.StatusOK, exportResponse{OK: true, Files: files, JustTextPath: justTextPath})
}

// bucketByDay groups events by their UTC calendar day token, each bucket
// sorted ascending by creation time.
func bucketByDay(events []store.Event) map[string][]store.Event {
	days := make(map[string][]store.Event)
	for _, ev := range events {
		day := time.Unix(ev.CreatedAt, 0).UTC().Format("060102")
		days[day] = append(days[day], ev)
	}
	for _, bucket := range days {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].CreatedAt < bucket[j].CreatedAt })
	}
	return days
}

// joinTextContent flattens a day's short-text notes into one block.
func joinTextContent(events []store.Event) string {
	var parts []string
	for _, ev := range events {
		if ev.Kind != 1 {
			continue
		}
		if text := strings.TrimSpace(ev.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
