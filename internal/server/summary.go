package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/otherstuff/craigd/internal/store"
)

type summaryRequest struct {
	User   string        `json:"user"`
	Events []store.Event `json:"events,omitempty"`
}

type summaryTimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type contentSummary struct {
	Total     int              `json:"total"`
	Kinds     map[int]int      `json:"kinds"`
	TimeRange summaryTimeRange `json:"timeRange"`
	Authors   int              `json:"authors"`
}

type summaryResponse struct {
	OK      bool           `json:"ok"`
	Summary contentSummary `json:"summary"`
}

// summary reports shape statistics over a set of events: the caller's own, or
// the subject's stored day bundles when none are supplied.
func (s *Server) summary(c echo.Context) error {
	var req summaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !strings.HasPrefix(req.User, "npub1") {
		return echo.NewHTTPError(http.StatusBadRequest, "user must be bech32 npub1...")
	}

	events := req.Events
	if len(events) == 0 {
		stored, err := s.loadStoredEvents(req.User)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "no stored events for user")
		}
		events = stored
	}
	if len(events) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no stored events for user")
	}

	return c.JSON(http.StatusOK, summaryResponse{OK: true, Summary: summarize(events)})
}

func (s *Server) loadStoredEvents(npub string) ([]store.Event, error) {
	bundles, err := s.Store.DayBundles(npub)
	if err != nil {
		return nil, err
	}
	var events []store.Event
	for _, name := range bundles {
		var day []store.Event
		if err := store.ReadJSON(s.Store.DayBundlePath(npub, store.DayToken(name)), &day); err != nil {
			continue
		}
		events = append(events, day...)
	}
	return events, nil
}

func summarize(events []store.Event) contentSummary {
	kinds := make(map[int]int)
	authors := make(map[string]struct{})
	min, max := events[0].CreatedAt, events[0].CreatedAt
	for _, ev := range events {
		kinds[ev.Kind]++
		if ev.Pubkey != "" {
			authors[ev.Pubkey] = struct{}{}
		}
		if ev.CreatedAt < min {
			min = ev.CreatedAt
		}
		if ev.CreatedAt > max {
			max = ev.CreatedAt
		}
	}
	return contentSummary{
		Total: len(events),
		Kinds: kinds,
		TimeRange: summaryTimeRange{
			From: time.Unix(min, 0).UTC().Format(time.RFC3339),
			To:   time.Unix(max, 0).UTC().Format(time.RFC3339),
		},
		Authors: len(authors),
	}
}
